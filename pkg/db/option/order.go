package option

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultOrderColumn is the store default ordering. Snowflake ids are time ordered,
// so primary key order is insertion order.
const DefaultOrderColumn = "id"

// SanitizeOrderBy keeps the tokens whose bare field, without a leading "-", is in allowed.
// Survivors keep their relative order. Unknown fields are dropped without error.
func SanitizeOrderBy(tokens []string, allowed map[string]bool) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		field := strings.TrimPrefix(token, "-")
		if field == "" || !allowed[field] {
			continue
		}
		out = append(out, token)
	}
	return out
}

// SplitOrderBy flattens repeated and comma separated order_by values.
func SplitOrderBy(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// WithOrderBy applies already sanitized tokens and always ends with the primary key
// so pages are stable. table qualifies columns when the query joins other tables.
func WithOrderBy(table string, tokens []string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		columns := make([]clause.OrderByColumn, 0, len(tokens)+1)
		hasID := false
		for _, token := range tokens {
			field := strings.TrimPrefix(token, "-")
			if field == DefaultOrderColumn {
				hasID = true
			}
			columns = append(columns, clause.OrderByColumn{
				Column: clause.Column{Table: table, Name: field},
				Desc:   strings.HasPrefix(token, "-"),
			})
		}
		if !hasID {
			columns = append(columns, clause.OrderByColumn{
				Column: clause.Column{Table: table, Name: DefaultOrderColumn},
			})
		}
		return db.Order(clause.OrderBy{Columns: columns})
	}
}

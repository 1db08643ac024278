package option

import "gorm.io/gorm"

// QueryOption mutates a gorm statement before it is executed.
type QueryOption func(db *gorm.DB) *gorm.DB

// Apply runs opts in order.
func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

// WithOffset pages by offset. A limit of zero or less leaves the query unbounded.
func WithOffset(offset, limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if offset > 0 {
			db = db.Offset(offset)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	}
}

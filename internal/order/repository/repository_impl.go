package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crm/internal/order/domain"
	"github.com/smallbiznis/crm/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repo) InsertProducts(ctx context.Context, db *gorm.DB, links []domain.OrderProduct) error {
	if len(links) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&links).Error
}

func (r *repo) LinkedPrices(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]decimal.Decimal, error) {
	var prices []decimal.Decimal
	err := db.WithContext(ctx).
		Table("products").
		Joins("JOIN order_products ON order_products.product_id = products.id").
		Where("order_products.order_id = ?", orderID).
		Pluck("products.price", &prices).Error
	if err != nil {
		return nil, err
	}
	return prices, nil
}

func (r *repo) UpdateTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal) error {
	return db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("total_amount", total).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := preload(db.WithContext(ctx)).Where("orders.id = ?", id).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, orderBy []string, offset, limit int) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := applyFilter(preload(db.WithContext(ctx)).Model(&domain.Order{}), filter)
	err := option.Apply(stmt,
		option.WithOrderBy("orders", orderBy),
		option.WithOffset(offset, limit),
	).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter) (int64, error) {
	var total int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Order{}), filter).Count(&total).Error
	return total, err
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB) ([]decimal.Decimal, error) {
	var totals []decimal.Decimal
	err := db.WithContext(ctx).Model(&domain.Order{}).Pluck("total_amount", &totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func preload(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Customer").
		Preload("Products", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("products.id")
		})
}

// applyFilter narrows orders through subqueries on the link table, so an order
// matching several products is still returned once.
func applyFilter(stmt *gorm.DB, filter domain.ListOrderFilter) *gorm.DB {
	if name := strings.TrimSpace(filter.CustomerName); name != "" {
		stmt = stmt.Where("orders.customer_id IN (?)",
			stmt.Session(&gorm.Session{NewDB: true}).
				Table("customers").
				Select("id").
				Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%"),
		)
	}
	if name := strings.TrimSpace(filter.ProductName); name != "" {
		stmt = stmt.Where("orders.id IN (?)",
			stmt.Session(&gorm.Session{NewDB: true}).
				Table("order_products").
				Select("order_products.order_id").
				Joins("JOIN products ON products.id = order_products.product_id").
				Where("LOWER(products.name) LIKE ?", "%"+strings.ToLower(name)+"%"),
		)
	}
	if filter.ProductID != nil {
		stmt = stmt.Where("orders.id IN (?)",
			stmt.Session(&gorm.Session{NewDB: true}).
				Table("order_products").
				Select("order_id").
				Where("product_id = ?", *filter.ProductID),
		)
	}
	if filter.TotalGte != nil {
		stmt = stmt.Where("orders.total_amount >= ?", *filter.TotalGte)
	}
	if filter.TotalLte != nil {
		stmt = stmt.Where("orders.total_amount <= ?", *filter.TotalLte)
	}
	if filter.OrderDateGte != nil {
		stmt = stmt.Where("orders.order_date >= ?", *filter.OrderDateGte)
	}
	if filter.OrderDateLte != nil {
		stmt = stmt.Where("orders.order_date <= ?", *filter.OrderDateLte)
	}
	return stmt
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertProducts(ctx context.Context, db *gorm.DB, links []OrderProduct) error
	// LinkedPrices returns the current price of every product linked to the order.
	LinkedPrices(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]decimal.Decimal, error)
	UpdateTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, orderBy []string, offset, limit int) ([]*Order, error)
	Count(ctx context.Context, db *gorm.DB, filter ListOrderFilter) (int64, error)
	// Totals returns the stored total of every order.
	Totals(ctx context.Context, db *gorm.DB) ([]decimal.Decimal, error)
}

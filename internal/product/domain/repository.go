package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Product, error)
	FindLowStock(ctx context.Context, db *gorm.DB, threshold int) ([]*Product, error)
	IncrementStock(ctx context.Context, db *gorm.DB, ids []snowflake.ID, by int) error
	List(ctx context.Context, db *gorm.DB, filter ListProductFilter, orderBy []string, offset, limit int) ([]*Product, error)
	Count(ctx context.Context, db *gorm.DB, filter ListProductFilter) (int64, error)
}

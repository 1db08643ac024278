package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/product/domain"
	"github.com/smallbiznis/crm/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Where("id = ?", id).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.Product, error) {
	var products []*domain.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) FindLowStock(ctx context.Context, db *gorm.DB, threshold int) ([]*domain.Product, error) {
	var products []*domain.Product
	err := db.WithContext(ctx).
		Where("stock < ?", threshold).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) IncrementStock(ctx context.Context, db *gorm.DB, ids []snowflake.ID, by int) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id IN ?", ids).
		Update("stock", gorm.Expr("stock + ?", by)).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListProductFilter, orderBy []string, offset, limit int) ([]*domain.Product, error) {
	var products []*domain.Product
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Product{}), filter)
	err := option.Apply(stmt,
		option.WithOrderBy("products", orderBy),
		option.WithOffset(offset, limit),
	).Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListProductFilter) (int64, error) {
	var total int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Product{}), filter).Count(&total).Error
	return total, err
}

func applyFilter(stmt *gorm.DB, filter domain.ListProductFilter) *gorm.DB {
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.PriceGte != nil {
		stmt = stmt.Where("price >= ?", *filter.PriceGte)
	}
	if filter.PriceLte != nil {
		stmt = stmt.Where("price <= ?", *filter.PriceLte)
	}
	if filter.StockGte != nil {
		stmt = stmt.Where("stock >= ?", *filter.StockGte)
	}
	if filter.StockLte != nil {
		stmt = stmt.Where("stock <= ?", *filter.StockLte)
	}
	if filter.LowStock != nil {
		if *filter.LowStock {
			stmt = stmt.Where("stock < ?", domain.LowStockThreshold)
		} else {
			stmt = stmt.Where("stock >= ?", domain.LowStockThreshold)
		}
	}
	return stmt
}

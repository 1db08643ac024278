package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	// InsertSkipConflicts inserts all rows in one statement; rows that hit a unique
	// constraint are skipped by the store.
	InsertSkipConflicts(ctx context.Context, db *gorm.DB, customers []*Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Customer, error)
	ExistingEmails(ctx context.Context, db *gorm.DB, emails []string) (map[string]struct{}, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter, orderBy []string, offset, limit int) ([]*Customer, error)
	Count(ctx context.Context, db *gorm.DB, filter ListCustomerFilter) (int64, error)
}

package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/customer/domain"
	"github.com/smallbiznis/crm/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) InsertSkipConflicts(ctx context.Context, db *gorm.DB, customers []*domain.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&customers).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Where("id = ?", id).Take(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	if len(ids) == 0 {
		return customers, nil
	}
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) ExistingEmails(ctx context.Context, db *gorm.DB, emails []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(emails))
	if len(emails) == 0 {
		return existing, nil
	}
	var found []string
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("email IN ?", emails).
		Pluck("email", &found).Error
	if err != nil {
		return nil, err
	}
	for _, email := range found {
		existing[email] = struct{}{}
	}
	return existing, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter, orderBy []string, offset, limit int) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Customer{}), filter)
	err := option.Apply(stmt,
		option.WithOrderBy("customers", orderBy),
		option.WithOffset(offset, limit),
	).Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter) (int64, error) {
	var total int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Customer{}), filter).Count(&total).Error
	return total, err
}

func applyFilter(stmt *gorm.DB, filter domain.ListCustomerFilter) *gorm.DB {
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		stmt = stmt.Where("LOWER(email) LIKE ?", "%"+strings.ToLower(email)+"%")
	}
	if phone := strings.TrimSpace(filter.PhonePrefix); phone != "" {
		stmt = stmt.Where("phone LIKE ?", phone+"%")
	}
	if filter.CreatedGte != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedGte)
	}
	if filter.CreatedLte != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedLte)
	}
	return stmt
}

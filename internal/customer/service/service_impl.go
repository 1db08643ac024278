package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/clock"
	"github.com/smallbiznis/crm/internal/customer/domain"
	obslogger "github.com/smallbiznis/crm/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/crm/internal/observability/metrics"
	"github.com/smallbiznis/crm/internal/validation"
	"github.com/smallbiznis/crm/pkg/db"
	"github.com/smallbiznis/crm/pkg/db/option"
	"github.com/smallbiznis/crm/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("customer.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.CreateCustomerResult, error) {
	req = normalize(req)
	if err := validation.CustomerPayload(req.Name, req.Email, req.Phone); err != nil {
		s.metrics.RecordMutation(ctx, "create_customer", false)
		return domain.CreateCustomerResult{Message: err.Error()}, nil
	}

	customer := s.newCustomer(req)
	if err := s.repo.Insert(ctx, s.db, customer); err != nil {
		switch {
		case db.IsDuplicateKeyErr(err):
			s.metrics.RecordMutation(ctx, "create_customer", false)
			return domain.CreateCustomerResult{Message: domain.MsgEmailExists}, nil
		case validation.IsValidationError(err):
			s.metrics.RecordMutation(ctx, "create_customer", false)
			return domain.CreateCustomerResult{Message: err.Error()}, nil
		default:
			return domain.CreateCustomerResult{}, fmt.Errorf("insert customer: %w", err)
		}
	}

	s.metrics.RecordMutation(ctx, "create_customer", true)
	return domain.CreateCustomerResult{
		Customer: customer,
		Message:  domain.MsgCreated,
		OK:       true,
	}, nil
}

// BulkCreate stages every valid row whose email is new, then inserts the staged rows
// in one transaction. Rejected rows never block the others.
func (s *Service) BulkCreate(ctx context.Context, reqs []domain.CreateCustomerRequest) (domain.BulkCreateResult, error) {
	result := domain.BulkCreateResult{
		Customers: []domain.Customer{},
		Errors:    []string{},
		Failed:    []domain.BulkFailure{},
	}
	reject := func(index int, reason string) {
		result.Failed = append(result.Failed, domain.BulkFailure{Index: index, Reason: reason})
		if index < 0 {
			result.Errors = append(result.Errors, reason)
			return
		}
		result.Errors = append(result.Errors, fmt.Sprintf("Index %d: %s", index, reason))
	}

	log := obslogger.WithContext(ctx, s.log).With(zap.Int("batch_size", len(reqs)))

	normalized := make([]domain.CreateCustomerRequest, 0, len(reqs))
	for _, req := range reqs {
		normalized = append(normalized, normalize(req))
	}
	reqs = normalized

	emails := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if email := req.Email; email != "" {
			emails = append(emails, email)
		}
	}
	// The store constraint stays authoritative; this lookup only avoids known conflicts.
	existing, err := s.repo.ExistingEmails(ctx, s.db, emails)
	if err != nil {
		log.Error("failed to load existing emails", zap.Error(err))
		reject(-1, err.Error())
		s.finishBulk(ctx, &result, len(reqs))
		return result, nil
	}

	seen := make(map[string]struct{}, len(reqs))
	staged := make([]*domain.Customer, 0, len(reqs))
	for i, req := range reqs {
		if err := validation.CustomerPayload(req.Name, req.Email, req.Phone); err != nil {
			reject(i, err.Error())
			continue
		}
		if err := validation.EmailFormat(req.Email); err != nil {
			reject(i, err.Error())
			continue
		}
		if _, dup := existing[req.Email]; dup {
			reject(i, domain.MsgEmailExists)
			continue
		}
		if _, dup := seen[req.Email]; dup {
			reject(i, domain.MsgEmailExists)
			continue
		}
		seen[req.Email] = struct{}{}
		staged = append(staged, s.newCustomer(req))
	}

	if len(staged) > 0 {
		ids := make([]snowflake.ID, 0, len(staged))
		for _, c := range staged {
			ids = append(ids, c.ID)
		}

		var confirmed []*domain.Customer
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.InsertSkipConflicts(ctx, tx, staged); err != nil {
				return err
			}
			// Skipped conflict rows are absent here, so only stored rows are reported.
			rows, err := s.repo.FindByIDs(ctx, tx, ids)
			if err != nil {
				return err
			}
			confirmed = rows
			return nil
		})
		if err != nil {
			log.Error("bulk insert failed", zap.Int("staged", len(staged)), zap.Error(err))
			reject(-1, err.Error())
		} else {
			for _, c := range confirmed {
				result.Customers = append(result.Customers, *c)
			}
		}
	}

	s.finishBulk(ctx, &result, len(reqs))
	return result, nil
}

func (s *Service) finishBulk(ctx context.Context, result *domain.BulkCreateResult, size int) {
	result.OK = len(result.Errors) == 0
	s.metrics.RecordMutation(ctx, "bulk_create_customers", result.OK)
	s.metrics.RecordBulkRejected(ctx, "rejected", len(result.Failed))
	obslogger.WithContext(ctx, s.log).Info("bulk create finished",
		zap.Int("batch_size", size),
		zap.Int("created", len(result.Customers)),
		zap.Int("rejected", len(result.Errors)),
	)
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	offset, limit, err := req.Pagination.Window()
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}
	orderBy := option.SanitizeOrderBy(req.OrderBy, domain.OrderFields)

	total, err := s.repo.Count(ctx, s.db, req.Filter)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}
	items, err := s.repo.List(ctx, s.db, req.Filter, orderBy, offset, limit)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}
	return pagination.BuildConnection(customers, offset, limit, total), nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, s.db, domain.ListCustomerFilter{})
}

// normalize strips surrounding whitespace from name and email before validation.
func normalize(req domain.CreateCustomerRequest) domain.CreateCustomerRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	return req
}

func (s *Service) newCustomer(req domain.CreateCustomerRequest) *domain.Customer {
	var phone *string
	if req.Phone != nil && *req.Phone != "" {
		value := *req.Phone
		phone = &value
	}
	return &domain.Customer{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     phone,
		CreatedAt: s.clock.Now(),
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

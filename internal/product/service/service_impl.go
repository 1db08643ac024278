package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/clock"
	obslogger "github.com/smallbiznis/crm/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/crm/internal/observability/metrics"
	"github.com/smallbiznis/crm/internal/product/domain"
	"github.com/smallbiznis/crm/internal/validation"
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
		log:     p.Log.Named("product.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.CreateProductResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	stock := 0
	if req.Stock != nil {
		stock = *req.Stock
	}
	price, err := validation.ProductPayload(req.Name, req.Price, stock)
	if err != nil {
		s.metrics.RecordMutation(ctx, "create_product", false)
		return domain.CreateProductResult{Message: err.Error()}, nil
	}

	product := &domain.Product{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Price:     price,
		Stock:     stock,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, product); err != nil {
		return domain.CreateProductResult{}, fmt.Errorf("insert product: %w", err)
	}

	s.metrics.RecordMutation(ctx, "create_product", true)
	return domain.CreateProductResult{
		Product: product,
		Message: domain.MsgCreated,
		OK:      true,
	}, nil
}

// UpdateLowStock adds the increment to every product under the threshold in one
// statement and returns the rows as stored afterwards.
func (s *Service) UpdateLowStock(ctx context.Context, req domain.UpdateLowStockRequest) (domain.UpdateLowStockResult, error) {
	increment := EffectiveIncrement(req.IncrementBy)
	log := obslogger.WithContext(ctx, s.log).With(zap.Int("increment_by", increment))

	var updated []*domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		low, err := s.repo.FindLowStock(ctx, tx, domain.LowStockThreshold)
		if err != nil {
			return err
		}
		if len(low) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(low))
		for _, p := range low {
			ids = append(ids, p.ID)
		}
		if err := s.repo.IncrementStock(ctx, tx, ids, increment); err != nil {
			return err
		}
		updated, err = s.repo.FindByIDs(ctx, tx, ids)
		return err
	})
	if err != nil {
		return domain.UpdateLowStockResult{}, fmt.Errorf("restock low stock products: %w", err)
	}

	s.metrics.RecordMutation(ctx, "update_low_stock_products", true)
	if len(updated) == 0 {
		log.Debug("no low-stock products")
		return domain.UpdateLowStockResult{
			Products: []domain.Product{},
			Message:  domain.MsgNoLowStock,
			OK:       true,
		}, nil
	}

	products := make([]domain.Product, 0, len(updated))
	for _, p := range updated {
		products = append(products, *p)
	}
	s.metrics.RecordRestocked(ctx, len(products))
	log.Info("restocked low-stock products", zap.Int("count", len(products)))

	return domain.UpdateLowStockResult{
		Products: products,
		Message:  domain.MsgUpdated(len(products)),
		OK:       true,
	}, nil
}

// EffectiveIncrement converts a raw increment to an integer in [0, domain.MaxIncrement].
// Missing or unparsable values yield domain.DefaultIncrement; fractional numbers are truncated.
func EffectiveIncrement(raw any) int {
	n, ok := toInt(raw)
	if !ok {
		return domain.DefaultIncrement
	}
	return min(max(n, 0), domain.MaxIncrement)
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case *int:
		if v == nil {
			return 0, false
		}
		return *v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		// Out of range floats do not convert to int reliably.
		if v >= domain.MaxIncrement {
			return domain.MaxIncrement, true
		}
		if v <= 0 {
			return 0, true
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if errors.Is(err, strconv.ErrRange) {
			return n, true
		}
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (s *Service) List(ctx context.Context, req domain.ListProductRequest) (domain.ListProductResponse, error) {
	offset, limit, err := req.Pagination.Window()
	if err != nil {
		return domain.ListProductResponse{}, err
	}
	orderBy := option.SanitizeOrderBy(req.OrderBy, domain.OrderFields)

	total, err := s.repo.Count(ctx, s.db, req.Filter)
	if err != nil {
		return domain.ListProductResponse{}, err
	}
	items, err := s.repo.List(ctx, s.db, req.Filter, orderBy, offset, limit)
	if err != nil {
		return domain.ListProductResponse{}, err
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		products = append(products, *item)
	}
	return pagination.BuildConnection(products, offset, limit, total), nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || productID == 0 {
		return domain.Product{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *item, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crm/internal/clock"
	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	obslogger "github.com/smallbiznis/crm/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/crm/internal/observability/metrics"
	"github.com/smallbiznis/crm/internal/order/domain"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	"github.com/smallbiznis/crm/internal/validation"
	"github.com/smallbiznis/crm/pkg/db/option"
	"github.com/smallbiznis/crm/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	ProductRepo  productdomain.Repository
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	customerRepo customerdomain.Repository
	productRepo  productdomain.Repository
	metrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("order.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		productRepo:  p.ProductRepo,
		metrics:      p.Metrics,
	}
}

// Create checks the customer and products, then inserts the order, its product
// links and its total in one transaction. Store failures inside the transaction
// are returned as errors and leave no partial order behind.
func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResult, error) {
	reject := func(msg string) (domain.CreateOrderResult, error) {
		s.metrics.RecordMutation(ctx, "create_order", false)
		return domain.CreateOrderResult{Message: msg}, nil
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return reject(domain.MsgInvalidCustomerID)
	}
	customer, err := s.customerRepo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return domain.CreateOrderResult{}, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return reject(domain.MsgInvalidCustomerID)
	}

	if len(req.ProductIDs) == 0 {
		return reject(validation.ErrEmptyProductList.Error())
	}

	productIDs, ok := distinctIDs(req.ProductIDs)
	if !ok {
		return reject(domain.MsgInvalidProductIDs)
	}
	products, err := s.productRepo.FindByIDs(ctx, s.db, productIDs)
	if err != nil {
		return domain.CreateOrderResult{}, fmt.Errorf("load products: %w", err)
	}
	if len(products) != len(productIDs) {
		return reject(domain.MsgInvalidProductIDs)
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:          s.genID.Generate(),
		CustomerID:  customer.ID,
		TotalAmount: decimal.Zero,
		OrderDate:   now,
		CreatedAt:   now,
	}
	if req.OrderDate != nil && !req.OrderDate.IsZero() {
		order.OrderDate = req.OrderDate.UTC()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}

		links := make([]domain.OrderProduct, 0, len(productIDs))
		for _, id := range productIDs {
			links = append(links, domain.OrderProduct{OrderID: order.ID, ProductID: id})
		}
		if err := s.repo.InsertProducts(ctx, tx, links); err != nil {
			return err
		}

		// Prices are read back through the links so the total reflects what was stored.
		prices, err := s.repo.LinkedPrices(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		order.TotalAmount = SumPrices(prices)
		return s.repo.UpdateTotal(ctx, tx, order.ID, order.TotalAmount)
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("create order failed",
			zap.String("customer_id", customer.ID.String()),
			zap.Error(err),
		)
		return domain.CreateOrderResult{}, fmt.Errorf("create order: %w", err)
	}

	created, err := s.repo.FindByID(ctx, s.db, order.ID)
	if err != nil {
		return domain.CreateOrderResult{}, fmt.Errorf("load order: %w", err)
	}
	if created == nil {
		return domain.CreateOrderResult{}, domain.ErrNotFound
	}

	s.metrics.RecordMutation(ctx, "create_order", true)
	s.metrics.RecordOrderRevenue(ctx, created.TotalAmount.Shift(2).IntPart())
	return domain.CreateOrderResult{
		Order:   created,
		Message: domain.MsgCreated,
		OK:      true,
	}, nil
}

// SumPrices adds prices exactly and rounds the result half away from zero to cents.
func SumPrices(prices []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, price := range prices {
		total = total.Add(price)
	}
	return total.Round(2)
}

// distinctIDs parses ids and drops repeats, keeping first occurrence order.
func distinctIDs(values []string) ([]snowflake.ID, bool) {
	seen := make(map[snowflake.ID]struct{}, len(values))
	ids := make([]snowflake.ID, 0, len(values))
	for _, value := range values {
		id, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil || id == 0 {
			return nil, false
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, true
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	offset, limit, err := req.Pagination.Window()
	if err != nil {
		return domain.ListOrderResponse{}, err
	}
	orderBy := option.SanitizeOrderBy(req.OrderBy, domain.OrderFields)

	total, err := s.repo.Count(ctx, s.db, req.Filter)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}
	items, err := s.repo.List(ctx, s.db, req.Filter, orderBy, offset, limit)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		orders = append(orders, *item)
	}
	return pagination.BuildConnection(orders, offset, limit, total), nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID == 0 {
		return domain.Order{}, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if item == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *item, nil
}

// Summary reads the stored totals; it never recomputes them from product prices.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	totals, err := s.repo.Totals(ctx, s.db)
	if err != nil {
		return domain.Summary{}, err
	}
	revenue := decimal.Zero
	for _, total := range totals {
		revenue = revenue.Add(total)
	}
	return domain.Summary{Orders: int64(len(totals)), Revenue: revenue}, nil
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crm/pkg/db/pagination"
)

// OrderFields are the fields orders may be sorted by.
var OrderFields = map[string]bool{
	"order_date":   true,
	"total_amount": true,
	"created_at":   true,
}

const (
	MsgCreated           = "Order created"
	MsgInvalidCustomerID = "Invalid customer ID"
	MsgInvalidProductIDs = "One or more product IDs are invalid"
)

type CreateOrderRequest struct {
	CustomerID string
	ProductIDs []string
	OrderDate  *time.Time
}

type CreateOrderResult struct {
	Order   *Order `json:"order"`
	Message string `json:"message"`
	OK      bool   `json:"ok"`
}

type ListOrderFilter struct {
	CustomerName string
	ProductName  string
	ProductID    *int64
	TotalGte     *decimal.Decimal
	TotalLte     *decimal.Decimal
	OrderDateGte *time.Time
	OrderDateLte *time.Time
}

type ListOrderRequest struct {
	pagination.Pagination
	Filter  ListOrderFilter
	OrderBy []string
}

type ListOrderResponse = pagination.Connection[Order]

// Summary is the order count and revenue over all orders.
type Summary struct {
	Orders  int64
	Revenue decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	Get(ctx context.Context, id string) (Order, error)
	Summary(ctx context.Context) (Summary, error)
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("not_found")
)

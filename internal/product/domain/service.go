package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crm/pkg/db/pagination"
)

// OrderFields are the fields products may be sorted by.
var OrderFields = map[string]bool{
	"name":       true,
	"price":      true,
	"stock":      true,
	"created_at": true,
}

// DefaultIncrement is used when no usable increment is supplied.
const DefaultIncrement = 10

// MaxIncrement caps a restock so stock stays within a 32-bit column.
const MaxIncrement = 1_000_000

const (
	MsgCreated    = "Product created"
	MsgNoLowStock = "No low-stock products"
)

func MsgUpdated(n int) string {
	return fmt.Sprintf("Updated %d products", n)
}

type CreateProductRequest struct {
	Name  string
	Price string
	Stock *int
}

type CreateProductResult struct {
	Product *Product `json:"product"`
	Message string   `json:"message"`
	OK      bool     `json:"ok"`
}

// UpdateLowStockRequest carries the raw increment. Anything that is not an integer
// falls back to DefaultIncrement.
type UpdateLowStockRequest struct {
	IncrementBy any
}

type UpdateLowStockResult struct {
	Products []Product `json:"updated_products"`
	Message  string    `json:"message"`
	OK       bool      `json:"ok"`
}

type ListProductFilter struct {
	Name     string
	PriceGte *decimal.Decimal
	PriceLte *decimal.Decimal
	StockGte *int
	StockLte *int
	LowStock *bool
}

type ListProductRequest struct {
	pagination.Pagination
	Filter  ListProductFilter
	OrderBy []string
}

type ListProductResponse = pagination.Connection[Product]

type Service interface {
	Create(ctx context.Context, req CreateProductRequest) (CreateProductResult, error)
	UpdateLowStock(ctx context.Context, req UpdateLowStockRequest) (UpdateLowStockResult, error)
	List(ctx context.Context, req ListProductRequest) (ListProductResponse, error)
	Get(ctx context.Context, id string) (Product, error)
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("not_found")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/crm/pkg/db/pagination"
)

// OrderFields are the fields customers may be sorted by.
var OrderFields = map[string]bool{
	"name":       true,
	"email":      true,
	"created_at": true,
}

const (
	MsgCreated     = "Customer created"
	MsgEmailExists = "Email already exists"
)

type CreateCustomerRequest struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone"`
}

type CreateCustomerResult struct {
	Customer *Customer `json:"customer"`
	Message  string    `json:"message"`
	OK       bool      `json:"ok"`
}

// BulkFailure is a rejected input row. Index is -1 when the whole batch failed.
type BulkFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BulkCreateResult holds the rows the store confirmed and the rejects in input order.
type BulkCreateResult struct {
	Customers []Customer    `json:"customers"`
	Errors    []string      `json:"errors"`
	Failed    []BulkFailure `json:"failed"`
	OK        bool          `json:"ok"`
}

type ListCustomerFilter struct {
	Name        string
	Email       string
	PhonePrefix string
	CreatedGte  *time.Time
	CreatedLte  *time.Time
}

type ListCustomerRequest struct {
	pagination.Pagination
	Filter  ListCustomerFilter
	OrderBy []string
}

type ListCustomerResponse = pagination.Connection[Customer]

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (CreateCustomerResult, error)
	BulkCreate(context.Context, []CreateCustomerRequest) (BulkCreateResult, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
	Count(context.Context) (int64, error)
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("not_found")
)

// Package validation holds the payload rules shared by the customer and product
// mutations. Validators never panic; they return a *Error or nil.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Error is a rejected payload. Message is shown to the caller as is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so wrapped copies compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyName        = &Error{Code: "empty_name", Message: "Name is required"}
	ErrEmptyEmail       = &Error{Code: "empty_email", Message: "Email is required"}
	ErrInvalidEmail     = &Error{Code: "invalid_email", Message: "Enter a valid email address."}
	ErrInvalidPhone     = &Error{Code: "invalid_phone", Message: "Invalid phone format"}
	ErrInvalidPrice     = &Error{Code: "invalid_price", Message: "Invalid price"}
	ErrNonPositivePrice = &Error{Code: "invalid_price", Message: "Price must be positive"}
	ErrNegativeStock    = &Error{Code: "negative_stock", Message: "Stock cannot be negative"}
	ErrEmptyProductList = &Error{Code: "empty_product_list", Message: "At least one product must be selected"}
)

// Either an optionally "+" prefixed run of 7 to 15 digits, or 123-456-7890.
var phonePattern = regexp.MustCompile(`^(\+?\d{7,15}|\d{3}-\d{3}-\d{4})$`)

// IsValidPhone reports whether phone matches one of the accepted formats.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// CustomerPayload checks name, email and phone in that order and returns the first failure.
// A nil or empty phone is accepted.
func CustomerPayload(name, email string, phone *string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if phone != nil && *phone != "" && !IsValidPhone(*phone) {
		return ErrInvalidPhone
	}
	return nil
}

var fieldValidator = validator.New(validator.WithRequiredStructEnabled())

// EmailFormat checks the address syntax. Customer rows run it before insert, so it
// applies to every write path and not only to the mutation payload checks.
func EmailFormat(email string) error {
	if err := fieldValidator.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ProductPayload checks name, price and stock and returns the price rounded to cents.
func ProductPayload(name, price string, stock int) (decimal.Decimal, error) {
	if strings.TrimSpace(name) == "" {
		return decimal.Zero, ErrEmptyName
	}
	amount, err := ParsePrice(price)
	if err != nil {
		return decimal.Zero, err
	}
	if stock < 0 {
		return decimal.Zero, ErrNegativeStock
	}
	return amount, nil
}

// ParsePrice parses a decimal string, rounds it half away from zero to two places
// and requires the result to be positive.
func ParsePrice(price string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, ErrNonPositivePrice
	}
	return amount, nil
}

// IsValidationError reports whether err carries a *Error.
func IsValidationError(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryInUse    = errors.New("category still has products")
	ErrOrderNotFound    = errors.New("order not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAddressNotFound  = errors.New("address not found")

	ErrProductUnavailable    = errors.New("product unavailable")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrStockExceeded         = errors.New("stock exceeded")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrCartItemNotFound      = errors.New("item not in cart")
	ErrOrderValidationFailed = errors.New("order validation failed")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrConcurrentUpdate      = errors.New("concurrent update conflict")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrInvalidInput          = errors.New("invalid input")

	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
)

// ErrStockExceededFor wraps ErrStockExceeded with the product that ran out.
func ErrStockExceededFor(productID string, requested, available int) error {
	return fmt.Errorf("%w: product %s requested %d, available %d", ErrStockExceeded, productID, requested, available)
}

// InvalidInput wraps ErrInvalidInput with a field-level reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ItemProblem describes one cart line rejected at checkout.
type ItemProblem struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// OrderValidationError is returned when checkout re-validation rejects one or
// more cart lines. It matches ErrOrderValidationFailed.
type OrderValidationError struct {
	Problems []ItemProblem
}

func (e *OrderValidationError) Error() string {
	ids := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		ids = append(ids, p.ProductID)
	}
	return fmt.Sprintf("%s: %s", ErrOrderValidationFailed, strings.Join(ids, ", "))
}

// Is matches ErrOrderValidationFailed and any cause carried by a problem, so a
// checkout rejected for stock also matches ErrStockExceeded.
func (e *OrderValidationError) Is(target error) bool {
	if target == ErrOrderValidationFailed {
		return true
	}
	for _, p := range e.Problems {
		if p.Err != nil && errors.Is(p.Err, target) {
			return true
		}
	}
	return false
}

// ProductIDs lists the offending products in the order they were found.
func (e *OrderValidationError) ProductIDs() []string {
	ids := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		ids = append(ids, p.ProductID)
	}
	return ids
}

package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the inventory core. Callers classify with errors.Is;
// the HTTP layer maps them to status codes.
var (
	// ErrNotFound means a referenced menu item, order, or ingredient does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecipeData means a recipe row carries a non-positive quantity.
	ErrInvalidRecipeData = errors.New("invalid recipe data")

	// ErrInvalidOrderData means an order item carries a non-positive quantity.
	ErrInvalidOrderData = errors.New("invalid order data")

	// ErrInvalidQuantity means a stock movement request carries a quantity or
	// cost outside its valid range.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrConcurrencyConflict means the transaction could not serialize within
	// the retry budget. Transient; the caller may retry the whole call.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrPersistenceFailure means the underlying store errored. The core does
	// not retry these.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Shortage describes one ingredient whose stock cannot cover a requirement.
type Shortage struct {
	IngredientID uint            `json:"ingredient_id"`
	Name         string          `json:"name"`
	Required     decimal.Decimal `json:"required"`
	Have         decimal.Decimal `json:"have"`
	Unit         string          `json:"unit"`
}

// InsufficientStockError reports the ingredients an order fell short on.
// Expected during normal operation; not a system fault.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		names[i] = fmt.Sprintf("%s (need %s, have %s)", s.Name, s.Required, s.Have)
	}
	return "insufficient stock: " + strings.Join(names, ", ")
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

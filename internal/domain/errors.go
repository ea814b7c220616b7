package domain

import (
	"errors"
	"fmt"
	"math"
)

// Ledger and checkout failure kinds. Typed errors below match these with
// errors.Is so callers can branch on the kind and still read the details.
var (
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrInvalidQuantity           = errors.New("quantity must be positive")
	ErrUnknownProduct            = errors.New("unknown product")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrInsufficientBatchQuantity = errors.New("insufficient batch quantity")
	ErrStockRaceDetected         = errors.New("stock changed concurrently")
	ErrCheckoutInProgress        = errors.New("checkout with this idempotency key is in progress")
	ErrAmountOutOfRange          = errors.New("amount out of range")
)

// Quantities are stored as INTEGER. MaxPrice bounds a single price or unit
// cost in minor units; sale totals are still checked with CheckSaleAmounts.
const (
	MaxQuantity       = math.MaxInt32
	MaxPrice    int64 = 100_000_000_000
)

// UnknownProductError names the product id that does not exist.
type UnknownProductError struct {
	ProductID string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %q", e.ProductID)
}

func (e *UnknownProductError) Is(target error) bool {
	return target == ErrUnknownProduct
}

// InsufficientStockError reports a shortfall for one product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

package domain

import (
	"fmt"
	"math"
	"time"
)

// CartLine is one requested item at checkout.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// NormalizeCart validates lines and merges duplicate product ids, keeping
// the order in which each product first appeared. The merged quantities are
// what availability is checked and stock consumed against; the sale itself
// keeps one line per cart line.
func NormalizeCart(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	merged := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, &UnknownProductError{}
		}
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: product %q quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}
		if i, ok := index[l.ProductID]; ok {
			if merged[i].Quantity > MaxQuantity-l.Quantity {
				return nil, fmt.Errorf("%w: product %q total quantity exceeds %d", ErrInvalidQuantity, l.ProductID, MaxQuantity)
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

// SaleLine is a sold item with the price captured at checkout.
type SaleLine struct {
	LineNo      int    `json:"line_no"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	PriceAtSale int64  `json:"price_at_sale"`
}

// Subtotal is quantity times price in minor units.
func (l SaleLine) Subtotal() int64 {
	return int64(l.Quantity) * l.PriceAtSale
}

// Sale is an immutable completed checkout.
type Sale struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Total     int64      `json:"total"`
	Lines     []SaleLine `json:"lines"`
}

// NewSale numbers the lines from 1 and fixes the total as the sum of their
// subtotals.
func NewSale(id string, createdAt time.Time, lines []SaleLine) *Sale {
	s := &Sale{ID: id, CreatedAt: createdAt, Lines: make([]SaleLine, len(lines))}
	for i, l := range lines {
		l.LineNo = i + 1
		s.Lines[i] = l
		s.Total += l.Subtotal()
	}
	return s
}

// CheckSaleAmounts fails with ErrAmountOutOfRange when a line subtotal or
// the running total of lines would not fit in int64.
func CheckSaleAmounts(lines []SaleLine) error {
	var total int64
	for _, l := range lines {
		if l.Quantity < 0 || l.PriceAtSale < 0 {
			return fmt.Errorf("%w: negative line for product %q", ErrAmountOutOfRange, l.ProductID)
		}
		if l.Quantity != 0 && l.PriceAtSale > math.MaxInt64/int64(l.Quantity) {
			return fmt.Errorf("%w: subtotal for product %q", ErrAmountOutOfRange, l.ProductID)
		}
		sub := l.Subtotal()
		if total > math.MaxInt64-sub {
			return fmt.Errorf("%w: sale total", ErrAmountOutOfRange)
		}
		total += sub
	}
	return nil
}

// CheckoutResult is a committed sale plus the post-sale on-hand of every
// product it touched.
type CheckoutResult struct {
	Sale          *Sale          `json:"sale"`
	UpdatedOnHand map[string]int `json:"updated_on_hand"`
}

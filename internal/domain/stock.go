package domain

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// MovementKind tags why a ledger movement happened.
type MovementKind string

const (
	MovementReceipt    MovementKind = "receipt"
	MovementSale       MovementKind = "sale"
	MovementCorrection MovementKind = "correction"
)

// Valid reports whether k is one of the known kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementReceipt, MovementSale, MovementCorrection:
		return true
	}
	return false
}

// StockBatch is one receipt of goods. Only QuantityRemaining ever changes,
// and it never goes below zero. Batches are kept after they are used up.
type StockBatch struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"product_id"`
	QuantityReceived  int        `json:"quantity_received"`
	QuantityRemaining int        `json:"quantity_remaining"`
	UnitCost          int64      `json:"unit_cost"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	ReceivedAt        time.Time  `json:"received_at"`
	Sequence          int64      `json:"sequence"`
}

// IsLive reports whether the batch still has stock.
func (b *StockBatch) IsLive() bool {
	return b.QuantityRemaining > 0
}

// StockMovement is an append-only record of one batch quantity change.
// IDs increase in commit order for a given product.
type StockMovement struct {
	ID             int64        `json:"id"`
	ProductID      string       `json:"product_id"`
	BatchID        string       `json:"batch_id"`
	Kind           MovementKind `json:"kind"`
	QuantityChange int          `json:"quantity_change"`
	ReferenceID    *string      `json:"reference_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Receipt is the input for recording newly received goods. Kind is the
// movement kind written for the new batch; empty means MovementReceipt.
// Positive stock corrections use MovementCorrection.
type Receipt struct {
	ProductID   string
	Quantity    int
	UnitCost    int64
	ExpiryDate  *time.Time
	ReferenceID *string
	Kind        MovementKind
}

// MovementKind returns the kind recorded for the receipt movement.
func (r Receipt) MovementKind() MovementKind {
	if r.Kind == "" {
		return MovementReceipt
	}
	return r.Kind
}

// Validate checks the receipt before it touches the ledger.
func (r Receipt) Validate() error {
	if r.ProductID == "" {
		return &UnknownProductError{}
	}
	if r.Quantity <= 0 || r.Quantity > MaxQuantity {
		return fmt.Errorf("%w: receipt of %d", ErrInvalidQuantity, r.Quantity)
	}
	if r.UnitCost < 0 {
		return fmt.Errorf("%w: negative unit cost", ErrInvalidQuantity)
	}
	if r.UnitCost > MaxPrice {
		return fmt.Errorf("%w: unit cost %d", ErrAmountOutOfRange, r.UnitCost)
	}
	if k := r.MovementKind(); k != MovementReceipt && k != MovementCorrection {
		return fmt.Errorf("receipt: invalid movement kind %q", k)
	}
	return nil
}

// Allocation is the quantity taken from one batch.
type Allocation struct {
	BatchID  string `json:"batch_id"`
	Quantity int    `json:"quantity"`
}

// compareConsumptionOrder orders batches earliest expiry first, batches
// without an expiry last, ties broken by receipt sequence.
func compareConsumptionOrder(a, b StockBatch) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

// SortForConsumption sorts batches in place into consumption order.
func SortForConsumption(batches []StockBatch) {
	slices.SortFunc(batches, compareConsumptionOrder)
}

// Plan decides how to take quantity units of productID from batches. Batches
// are walked in consumption order regardless of input order; empty batches
// are skipped. Nothing is planned unless the live total covers quantity.
func Plan(productID string, batches []StockBatch, quantity int) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: consume %d of %q", ErrInvalidQuantity, quantity, productID)
	}

	live := make([]StockBatch, 0, len(batches))
	available := 0
	for _, b := range batches {
		if b.IsLive() {
			live = append(live, b)
			available += b.QuantityRemaining
		}
	}
	if available < quantity {
		return nil, &InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	SortForConsumption(live)

	var plan []Allocation
	need := quantity
	for _, b := range live {
		take := min(b.QuantityRemaining, need)
		plan = append(plan, Allocation{BatchID: b.ID, Quantity: take})
		need -= take
		if need == 0 {
			break
		}
	}
	return plan, nil
}

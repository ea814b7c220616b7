package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
)

// BatchConsumer removes stock from a product's batches, earliest expiry
// first. It must run on a transaction-bound ledger for the deductions to
// be all-or-nothing.
type BatchConsumer struct {
	ledger repository.LedgerRepository
}

// NewBatchConsumer creates a consumer over ledger.
func NewBatchConsumer(ledger repository.LedgerRepository) *BatchConsumer {
	return &BatchConsumer{ledger: ledger}
}

// Consume takes quantity units of productID and records sale movements
// tagged with ref. When live stock is short it returns
// *domain.InsufficientStockError before touching any batch.
func (c *BatchConsumer) Consume(ctx context.Context, productID string, quantity int, ref *string) ([]domain.Allocation, error) {
	return c.consume(ctx, productID, quantity, domain.MovementSale, ref)
}

// Correct takes amount units of productID as a stock correction.
func (c *BatchConsumer) Correct(ctx context.Context, productID string, amount int, ref *string) ([]domain.Allocation, error) {
	return c.consume(ctx, productID, amount, domain.MovementCorrection, ref)
}

func (c *BatchConsumer) consume(ctx context.Context, productID string, quantity int, kind domain.MovementKind, ref *string) ([]domain.Allocation, error) {
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return nil, fmt.Errorf("%w: consume %d of %q", domain.ErrInvalidQuantity, quantity, productID)
	}

	batches, err := c.ledger.LiveBatches(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load live batches: %w", err)
	}

	plan, err := domain.Plan(productID, batches, quantity)
	if err != nil {
		return nil, err
	}

	for _, a := range plan {
		if err := c.ledger.DeductFromBatch(ctx, a.BatchID, a.Quantity, kind, ref); err != nil {
			if errors.Is(err, domain.ErrInsufficientBatchQuantity) {
				return nil, fmt.Errorf("%w: %v", domain.ErrStockRaceDetected, err)
			}
			return nil, fmt.Errorf("deduct from batch %s: %w", a.BatchID, err)
		}
	}
	return plan, nil
}

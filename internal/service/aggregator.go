package service

import (
	"context"
	"fmt"

	"github.com/utafrali/posledger/internal/repository"
)

// StockAggregator derives on-hand quantities from live batches. It reads
// through whatever ledger it was built on, so inside a transaction it sees
// that transaction's view.
type StockAggregator struct {
	ledger repository.LedgerRepository
}

// NewStockAggregator creates an aggregator over ledger.
func NewStockAggregator(ledger repository.LedgerRepository) *StockAggregator {
	return &StockAggregator{ledger: ledger}
}

// OnHand returns the live quantity of one product, 0 when the product is
// unknown or has no live batches.
func (a *StockAggregator) OnHand(ctx context.Context, productID string) (int, error) {
	onHand, err := a.OnHandMany(ctx, []string{productID})
	if err != nil {
		return 0, err
	}
	return onHand[productID], nil
}

// OnHandMany returns on-hand for every id from a single query. Every id is
// present in the result.
func (a *StockAggregator) OnHandMany(ctx context.Context, productIDs []string) (map[string]int, error) {
	onHand, err := a.ledger.SumLive(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("sum live stock: %w", err)
	}
	for _, id := range productIDs {
		if _, ok := onHand[id]; !ok {
			onHand[id] = 0
		}
	}
	return onHand, nil
}

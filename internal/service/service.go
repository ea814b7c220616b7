package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
)

// EventPublisher announces committed ledger changes. Publishing happens
// after commit and its failures are only logged.
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, sale *domain.Sale) error
	PublishStockReceived(ctx context.Context, batch *domain.StockBatch, onHand int) error
	PublishStockCorrected(ctx context.Context, productID string, delta, onHand int) error
	PublishLowStock(ctx context.Context, productID string, onHand, threshold int) error
}

// lowStockNotifier emits stock.low for products at or below threshold. A
// negative threshold disables it.
type lowStockNotifier struct {
	events    EventPublisher
	threshold int
	logger    *slog.Logger
}

func (n lowStockNotifier) notify(ctx context.Context, onHand map[string]int) {
	if n.events == nil || n.threshold < 0 {
		return
	}
	for productID, qty := range onHand {
		if qty > n.threshold {
			continue
		}
		if err := n.events.PublishLowStock(ctx, productID, qty, n.threshold); err != nil {
			n.logger.ErrorContext(ctx, "failed to publish stock.low event",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// lockProduct locks a single product row and fails with
// *domain.UnknownProductError when it does not exist.
func lockProduct(ctx context.Context, ledger repository.LedgerRepository, productID string) (domain.Product, error) {
	locked, err := ledger.LockProducts(ctx, []string{productID})
	if err != nil {
		return domain.Product{}, fmt.Errorf("lock product: %w", err)
	}
	p, ok := locked[productID]
	if !ok {
		return domain.Product{}, &domain.UnknownProductError{ProductID: productID}
	}
	return p, nil
}

package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
)

// DefaultMovementPageSize is the keyset page size used when none is given.
const DefaultMovementPageSize = 100

// LedgerService records stock receipts and corrections and answers stock
// queries.
type LedgerService struct {
	store    repository.Store
	events   EventPublisher
	logger   *slog.Logger
	lowStock lowStockNotifier
}

// NewLedgerService creates a ledger service. events may be nil, in which
// case nothing is published.
func NewLedgerService(store repository.Store, events EventPublisher, logger *slog.Logger, lowStockThreshold int) *LedgerService {
	return &LedgerService{
		store:    store,
		events:   events,
		logger:   logger,
		lowStock: lowStockNotifier{events: events, threshold: lowStockThreshold, logger: logger},
	}
}

// ReceiveStock appends a new batch for an existing product and returns it
// with the product's new on-hand.
func (s *LedgerService) ReceiveStock(ctx context.Context, receipt domain.Receipt) (*domain.StockBatch, int, error) {
	if err := receipt.Validate(); err != nil {
		return nil, 0, err
	}

	var (
		batch  *domain.StockBatch
		onHand int
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if _, err := lockProduct(ctx, tx.Ledger(), receipt.ProductID); err != nil {
			return err
		}

		var err error
		batch, err = tx.Ledger().AppendReceipt(ctx, receipt)
		if err != nil {
			return fmt.Errorf("append receipt: %w", err)
		}

		onHand, err = NewStockAggregator(tx.Ledger()).OnHand(ctx, receipt.ProductID)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("receive stock: %w", err)
	}

	unitsReceivedTotal.WithLabelValues(string(receipt.MovementKind())).Add(float64(batch.QuantityReceived))

	if s.events != nil {
		if err := s.events.PublishStockReceived(ctx, batch, onHand); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish stock.received event",
				slog.String("product_id", batch.ProductID),
				slog.String("batch_id", batch.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "stock received",
		slog.String("product_id", batch.ProductID),
		slog.String("batch_id", batch.ID),
		slog.Int("quantity", batch.QuantityReceived),
		slog.Int("on_hand", onHand),
	)
	return batch, onHand, nil
}

// CorrectStock moves a product's on-hand by delta and returns the new
// on-hand. A positive delta becomes a new batch costed at the current
// selling price, a negative delta is consumed from batches in the usual
// order, and zero changes nothing.
func (s *LedgerService) CorrectStock(ctx context.Context, productID string, delta int) (int, error) {
	ref := uuid.NewString()

	var onHand int
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		product, err := lockProduct(ctx, tx.Ledger(), productID)
		if err != nil {
			return err
		}

		switch {
		case delta > 0:
			if _, err := tx.Ledger().AppendReceipt(ctx, domain.Receipt{
				ProductID:   productID,
				Quantity:    delta,
				UnitCost:    product.Price,
				ReferenceID: &ref,
				Kind:        domain.MovementCorrection,
			}); err != nil {
				return fmt.Errorf("append correction batch: %w", err)
			}
		case delta < 0:
			if _, err := NewBatchConsumer(tx.Ledger()).Correct(ctx, productID, -delta, &ref); err != nil {
				return err
			}
		}

		onHand, err = NewStockAggregator(tx.Ledger()).OnHand(ctx, productID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("correct stock: %w", err)
	}
	if delta == 0 {
		return onHand, nil
	}

	if delta > 0 {
		unitsReceivedTotal.WithLabelValues(string(domain.MovementCorrection)).Add(float64(delta))
	} else {
		unitsConsumedTotal.WithLabelValues(string(domain.MovementCorrection)).Add(float64(-delta))
	}

	if s.events != nil {
		if err := s.events.PublishStockCorrected(ctx, productID, delta, onHand); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish stock.corrected event",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.lowStock.notify(ctx, map[string]int{productID: onHand})

	s.logger.InfoContext(ctx, "stock corrected",
		slog.String("product_id", productID),
		slog.Int("delta", delta),
		slog.Int("on_hand", onHand),
		slog.String("reference_id", ref),
	)
	return onHand, nil
}

// OnHand returns the live quantity of a product, 0 when it is unknown.
func (s *LedgerService) OnHand(ctx context.Context, productID string) (int, error) {
	return NewStockAggregator(s.store.Ledger()).OnHand(ctx, productID)
}

// ListBatches returns every batch of a product, used up ones included.
func (s *LedgerService) ListBatches(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	if _, err := s.store.Catalog().GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	batches, err := s.store.Ledger().ListBatches(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// ListMovements yields a product's movements with id greater than afterID,
// oldest first, fetching pageSize rows at a time as the caller iterates.
// The sequence ends after the last page or at the first error.
func (s *LedgerService) ListMovements(ctx context.Context, productID string, afterID int64, pageSize int) iter.Seq2[domain.StockMovement, error] {
	if pageSize <= 0 {
		pageSize = DefaultMovementPageSize
	}
	return func(yield func(domain.StockMovement, error) bool) {
		after := afterID
		for {
			page, err := s.store.Ledger().ListMovements(ctx, productID, after, pageSize)
			if err != nil {
				yield(domain.StockMovement{}, fmt.Errorf("list movements: %w", err))
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
				after = m.ID
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
)

// CheckoutService turns carts into sales.
type CheckoutService struct {
	store    repository.Store
	idem     repository.IdempotencyStore
	idemTTL  time.Duration
	events   EventPublisher
	lowStock lowStockNotifier
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewCheckoutService creates a checkout service. idem and events may be
// nil; without idem every request is a fresh checkout.
func NewCheckoutService(
	store repository.Store,
	idem repository.IdempotencyStore,
	idemTTL time.Duration,
	events EventPublisher,
	logger *slog.Logger,
	lowStockThreshold int,
) *CheckoutService {
	return &CheckoutService{
		store:    store,
		idem:     idem,
		idemTTL:  idemTTL,
		events:   events,
		lowStock: lowStockNotifier{events: events, threshold: lowStockThreshold, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Checkout sells every line of the cart or nothing. Prices and
// availability are read once under row locks on the cart's products; the
// sale, its batch deductions and movements commit together.
//
// Failures carry the domain error kinds: ErrEmptyCart and
// ErrInvalidQuantity for bad input, *UnknownProductError,
// *InsufficientStockError with the first short line, and
// ErrStockRaceDetected when stock moved underneath the transaction.
func (s *CheckoutService) Checkout(ctx context.Context, lines []domain.CartLine) (*domain.CheckoutResult, error) {
	start := time.Now()
	result, err := s.checkout(ctx, lines)
	checkoutDuration.Observe(time.Since(start).Seconds())
	checkoutsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, result)
	return result, nil
}

func (s *CheckoutService) checkout(ctx context.Context, lines []domain.CartLine) (*domain.CheckoutResult, error) {
	cart, err := domain.NormalizeCart(lines)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(cart))
	for i, l := range cart {
		ids[i] = l.ProductID
	}

	saleID := s.newID()
	var result *domain.CheckoutResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		ledger := tx.Ledger()

		products, err := ledger.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		for _, l := range cart {
			if _, ok := products[l.ProductID]; !ok {
				return &domain.UnknownProductError{ProductID: l.ProductID}
			}
		}

		aggregator := NewStockAggregator(ledger)
		onHand, err := aggregator.OnHandMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, l := range cart {
			if available := onHand[l.ProductID]; available < l.Quantity {
				return &domain.InsufficientStockError{
					ProductID: l.ProductID,
					Requested: l.Quantity,
					Available: available,
				}
			}
		}

		// One sale line per cart line, priced from the locked rows.
		saleLines := make([]domain.SaleLine, len(lines))
		for i, l := range lines {
			saleLines[i] = domain.SaleLine{
				ProductID:   l.ProductID,
				Quantity:    l.Quantity,
				PriceAtSale: products[l.ProductID].Price,
			}
		}
		if err := domain.CheckSaleAmounts(saleLines); err != nil {
			return err
		}

		consumer := NewBatchConsumer(ledger)
		for _, l := range cart {
			if _, err := consumer.Consume(ctx, l.ProductID, l.Quantity, &saleID); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					return fmt.Errorf("%w: %v", domain.ErrStockRaceDetected, err)
				}
				return err
			}
		}

		sale := domain.NewSale(saleID, s.now(), saleLines)
		if err := tx.Sales().Create(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		updated, err := aggregator.OnHandMany(ctx, ids)
		if err != nil {
			return err
		}
		result = &domain.CheckoutResult{Sale: sale, UpdatedOnHand: updated}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return result, nil
}

func (s *CheckoutService) afterCommit(ctx context.Context, result *domain.CheckoutResult) {
	for _, l := range result.Sale.Lines {
		unitsConsumedTotal.WithLabelValues(string(domain.MovementSale)).Add(float64(l.Quantity))
	}

	if s.events != nil {
		if err := s.events.PublishSaleCompleted(ctx, result.Sale); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish sale.completed event",
				slog.String("sale_id", result.Sale.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.lowStock.notify(ctx, result.UpdatedOnHand)

	s.logger.InfoContext(ctx, "sale completed",
		slog.String("sale_id", result.Sale.ID),
		slog.Int("lines", len(result.Sale.Lines)),
		slog.Int64("total", result.Sale.Total),
	)
}

// CheckoutIdempotent runs Checkout at most once per key. A repeated key
// returns the recorded sale with replayed=true; a key whose first request
// is still running fails with domain.ErrCheckoutInProgress. A failed
// checkout frees the key so the client can retry. With an empty key, or
// when the key store is unavailable, it behaves like Checkout.
func (s *CheckoutService) CheckoutIdempotent(ctx context.Context, key string, lines []domain.CartLine) (_ *domain.CheckoutResult, replayed bool, _ error) {
	if key == "" || s.idem == nil {
		result, err := s.Checkout(ctx, lines)
		return result, false, err
	}

	claimed, saleID, err := s.idem.Reserve(ctx, key, s.idemTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency store unavailable, checking out without key",
			slog.String("error", err.Error()),
		)
		result, err := s.Checkout(ctx, lines)
		return result, false, err
	}
	if !claimed {
		if saleID == "" {
			return nil, false, domain.ErrCheckoutInProgress
		}
		result, err := s.replay(ctx, saleID)
		if err != nil {
			return nil, false, err
		}
		checkoutsTotal.WithLabelValues(outcomeReplayed).Inc()
		return result, true, nil
	}

	result, err := s.Checkout(ctx, lines)
	if err != nil {
		if relErr := s.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.ErrorContext(ctx, "failed to release idempotency key",
				slog.String("error", relErr.Error()),
			)
		}
		return nil, false, err
	}
	if err := s.idem.Complete(context.WithoutCancel(ctx), key, result.Sale.ID, s.idemTTL); err != nil {
		s.logger.ErrorContext(ctx, "failed to record idempotency key",
			slog.String("sale_id", result.Sale.ID),
			slog.String("error", err.Error()),
		)
	}
	return result, false, nil
}

func (s *CheckoutService) replay(ctx context.Context, saleID string) (*domain.CheckoutResult, error) {
	sale, err := s.store.Sales().GetByID(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("load replayed sale: %w", err)
	}
	ids := make([]string, len(sale.Lines))
	for i, l := range sale.Lines {
		ids[i] = l.ProductID
	}
	onHand, err := NewStockAggregator(s.store.Ledger()).OnHandMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &domain.CheckoutResult{Sale: sale, UpdatedOnHand: onHand}, nil
}

// GetSale returns a completed sale with its lines.
func (s *CheckoutService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.store.Sales().GetByID(ctx, id)
}

// ListSales returns a page of sales, newest first, and the total count.
func (s *CheckoutService) ListSales(ctx context.Context, limit, offset int) ([]domain.Sale, int, error) {
	sales, total, err := s.store.Sales().List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	return sales, total, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeCommitted
	case errors.Is(err, domain.ErrStockRaceDetected):
		return outcomeRace
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrAmountOutOfRange),
		errors.Is(err, domain.ErrUnknownProduct),
		errors.Is(err, domain.ErrInsufficientStock):
		return outcomeRejected
	default:
		return outcomeError
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestCheckout(store *fakeStore, events *mockEvents, idem *mockIdem) *CheckoutService {
	var (
		pub EventPublisher
		key repository.IdempotencyStore
	)
	if events != nil {
		pub = events
	}
	if idem != nil {
		key = idem
	}
	svc := NewCheckoutService(store, key, time.Hour, pub, newTestLogger(), 5)
	svc.now = func() time.Time { return fixedNow }
	svc.newID = func() string { return "sale-1" }
	return svc
}

func saleRef(ref *string) bool { return ref != nil && *ref == "sale-1" }

func products(ps ...domain.Product) map[string]domain.Product {
	out := make(map[string]domain.Product, len(ps))
	for _, p := range ps {
		out[p.ID] = p
	}
	return out
}

func TestCheckout_SingleLine(t *testing.T) {
	store := newFakeStore()
	events := new(mockEvents)
	svc := newTestCheckout(store, events, nil)
	ctx := context.Background()

	store.ledger.On("LockProducts", mock.Anything, []string{"X"}).
		Return(products(domain.Product{ID: "X", Price: 150}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 10}, nil).Once()
	store.ledger.On("LiveBatches", mock.Anything, "X").
		Return([]domain.StockBatch{{ID: "b1", ProductID: "X", QuantityRemaining: 10, Sequence: 1}}, nil)
	store.ledger.On("DeductFromBatch", mock.Anything, "b1", 3, domain.MovementSale, mock.MatchedBy(saleRef)).Return(nil)
	store.sales.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.Sale) bool {
		return s.ID == "sale-1" && s.Total == 450 && len(s.Lines) == 1 && s.Lines[0].PriceAtSale == 150
	})).Return(nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 7}, nil).Once()
	events.On("PublishSaleCompleted", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Checkout(ctx, []domain.CartLine{{ProductID: "X", Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, int64(450), result.Sale.Total)
	assert.Equal(t, fixedNow, result.Sale.CreatedAt)
	assert.Equal(t, map[string]int{"X": 7}, result.UpdatedOnHand)
	assert.Equal(t, 1, store.commits)
	assert.Zero(t, store.rollbacks)
	store.ledger.AssertExpectations(t)
	store.sales.AssertExpectations(t)
	events.AssertExpectations(t)
	events.AssertNotCalled(t, "PublishLowStock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_SpansBatchesInExpiryOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"P"}).
		Return(products(domain.Product{ID: "P", Price: 100}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"P"}).Return(map[string]int{"P": 10}, nil).Once()
	store.ledger.On("LiveBatches", mock.Anything, "P").Return([]domain.StockBatch{
		{ID: "e2", QuantityRemaining: 3, ExpiryDate: dateOf(2026, 2, 1), Sequence: 2},
		{ID: "e3", QuantityRemaining: 5, ExpiryDate: dateOf(2026, 3, 1), Sequence: 3},
		{ID: "e1", QuantityRemaining: 2, ExpiryDate: dateOf(2026, 1, 1), Sequence: 1},
	}, nil)
	store.ledger.On("DeductFromBatch", mock.Anything, "e1", 2, domain.MovementSale, mock.MatchedBy(saleRef)).Return(nil).Once()
	store.ledger.On("DeductFromBatch", mock.Anything, "e2", 2, domain.MovementSale, mock.MatchedBy(saleRef)).Return(nil).Once()
	store.sales.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.ledger.On("SumLive", mock.Anything, []string{"P"}).Return(map[string]int{"P": 6}, nil).Once()

	result, err := svc.Checkout(context.Background(), []domain.CartLine{{ProductID: "P", Quantity: 4}})
	require.NoError(t, err)
	assert.Equal(t, 6, result.UpdatedOnHand["P"])
	store.ledger.AssertExpectations(t)
	store.ledger.AssertNotCalled(t, "DeductFromBatch", mock.Anything, "e3", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_AllOrNothing(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"A", "B"}).
		Return(products(domain.Product{ID: "A", Price: 100}, domain.Product{ID: "B", Price: 200}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"A", "B"}).Return(map[string]int{"A": 10, "B": 5}, nil)

	_, err := svc.Checkout(context.Background(), []domain.CartLine{
		{ProductID: "A", Quantity: 3},
		{ProductID: "B", Quantity: 100},
	})

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "B", insufficient.ProductID)
	assert.Equal(t, 100, insufficient.Requested)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, 1, store.rollbacks)
	assert.Zero(t, store.commits)
	store.ledger.AssertNotCalled(t, "DeductFromBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.sales.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCheckout_MergesDuplicateLines(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"X"}).
		Return(products(domain.Product{ID: "X", Price: 50}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 3}, nil).Once()
	store.ledger.On("LiveBatches", mock.Anything, "X").
		Return([]domain.StockBatch{{ID: "b1", QuantityRemaining: 3, Sequence: 1}}, nil)
	store.ledger.On("DeductFromBatch", mock.Anything, "b1", 3, domain.MovementSale, mock.Anything).Return(nil).Once()
	store.sales.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.Sale) bool {
		return len(s.Lines) == 2
	})).Return(nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 0}, nil).Once()

	result, err := svc.Checkout(context.Background(), []domain.CartLine{
		{ProductID: "X", Quantity: 1},
		{ProductID: "X", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, result.Sale.Lines, 2)
	assert.Equal(t, domain.SaleLine{LineNo: 1, ProductID: "X", Quantity: 1, PriceAtSale: 50}, result.Sale.Lines[0])
	assert.Equal(t, domain.SaleLine{LineNo: 2, ProductID: "X", Quantity: 2, PriceAtSale: 50}, result.Sale.Lines[1])
	assert.Equal(t, int64(150), result.Sale.Total)
	store.ledger.AssertNumberOfCalls(t, "DeductFromBatch", 1)
}

func TestCheckout_KeepsCartLineOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"A", "B"}).
		Return(products(domain.Product{ID: "A", Price: 100}, domain.Product{ID: "B", Price: 20}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"A", "B"}).Return(map[string]int{"A": 5, "B": 5}, nil).Once()
	store.ledger.On("LiveBatches", mock.Anything, "A").
		Return([]domain.StockBatch{{ID: "a1", QuantityRemaining: 5, Sequence: 1}}, nil)
	store.ledger.On("LiveBatches", mock.Anything, "B").
		Return([]domain.StockBatch{{ID: "b1", QuantityRemaining: 5, Sequence: 2}}, nil)
	store.ledger.On("DeductFromBatch", mock.Anything, "a1", 3, domain.MovementSale, mock.Anything).Return(nil).Once()
	store.ledger.On("DeductFromBatch", mock.Anything, "b1", 1, domain.MovementSale, mock.Anything).Return(nil).Once()
	store.sales.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.ledger.On("SumLive", mock.Anything, []string{"A", "B"}).Return(map[string]int{"A": 2, "B": 4}, nil).Once()

	result, err := svc.Checkout(context.Background(), []domain.CartLine{
		{ProductID: "A", Quantity: 1},
		{ProductID: "B", Quantity: 1},
		{ProductID: "A", Quantity: 2},
	})
	require.NoError(t, err)

	got := make([]string, len(result.Sale.Lines))
	for i, l := range result.Sale.Lines {
		got[i] = fmt.Sprintf("%d:%s:%d", l.LineNo, l.ProductID, l.Quantity)
	}
	assert.Equal(t, []string{"1:A:1", "2:B:1", "3:A:2"}, got)
	assert.Equal(t, int64(100+20+200), result.Sale.Total)
}

func TestCheckout_TotalOverflowRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"X"}).
		Return(products(domain.Product{ID: "X", Price: math.MaxInt64 / 2}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 10}, nil).Once()

	_, err := svc.Checkout(context.Background(), []domain.CartLine{{ProductID: "X", Quantity: 3}})
	require.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	store.ledger.AssertNotCalled(t, "DeductFromBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.sales.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Equal(t, 1, store.rollbacks)
}

func TestCheckout_RejectsBadInputBeforeTransaction(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	_, err := svc.Checkout(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = svc.Checkout(context.Background(), []domain.CartLine{{ProductID: "X", Quantity: 0}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	assert.Zero(t, store.commits+store.rollbacks)
}

func TestCheckout_UnknownProduct(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"A", "ghost"}).
		Return(products(domain.Product{ID: "A", Price: 100}), nil)

	_, err := svc.Checkout(context.Background(), []domain.CartLine{
		{ProductID: "A", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})
	var unknown *domain.UnknownProductError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.ProductID)
	assert.Equal(t, 1, store.rollbacks)
}

func TestCheckout_StockRace(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *mockLedger)
	}{
		{
			name: "batches short of snapshot",
			setup: func(l *mockLedger) {
				l.On("LiveBatches", mock.Anything, "X").
					Return([]domain.StockBatch{{ID: "b1", QuantityRemaining: 1, Sequence: 1}}, nil)
			},
		},
		{
			name: "batch drained before deduction",
			setup: func(l *mockLedger) {
				l.On("LiveBatches", mock.Anything, "X").
					Return([]domain.StockBatch{{ID: "b1", QuantityRemaining: 5, Sequence: 1}}, nil)
				l.On("DeductFromBatch", mock.Anything, "b1", 2, domain.MovementSale, mock.Anything).
					Return(domain.ErrInsufficientBatchQuantity)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestCheckout(store, nil, nil)

			store.ledger.On("LockProducts", mock.Anything, []string{"X"}).
				Return(products(domain.Product{ID: "X", Price: 10}), nil)
			store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 5}, nil)
			tc.setup(store.ledger)

			_, err := svc.Checkout(context.Background(), []domain.CartLine{{ProductID: "X", Quantity: 2}})
			assert.ErrorIs(t, err, domain.ErrStockRaceDetected)
			assert.NotErrorIs(t, err, domain.ErrInsufficientStock)
			assert.Equal(t, 1, store.rollbacks)
			store.sales.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_StorageErrorRollsBack(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"X"}).Return(nil, errors.New("connection reset"))

	_, err := svc.Checkout(context.Background(), []domain.CartLine{{ProductID: "X", Quantity: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, store.rollbacks)
}

func TestCheckout_LowStockAndPublishFailure(t *testing.T) {
	store := newFakeStore()
	events := new(mockEvents)
	svc := newTestCheckout(store, events, nil)

	store.ledger.On("LockProducts", mock.Anything, []string{"X"}).
		Return(products(domain.Product{ID: "X", Price: 10}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 6}, nil).Once()
	store.ledger.On("LiveBatches", mock.Anything, "X").
		Return([]domain.StockBatch{{ID: "b1", QuantityRemaining: 6, Sequence: 1}}, nil)
	store.ledger.On("DeductFromBatch", mock.Anything, "b1", 4, domain.MovementSale, mock.Anything).Return(nil)
	store.sales.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 2}, nil).Once()
	events.On("PublishSaleCompleted", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	events.On("PublishLowStock", mock.Anything, "X", 2, 5).Return(nil)

	result, err := svc.Checkout(context.Background(), []domain.CartLine{{ProductID: "X", Quantity: 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.UpdatedOnHand["X"])
	events.AssertExpectations(t)
}

func TestCheckoutIdempotent_FirstRequest(t *testing.T) {
	store := newFakeStore()
	idem := new(mockIdem)
	svc := newTestCheckout(store, nil, idem)

	idem.On("Reserve", mock.Anything, "key-1", time.Hour).Return(true, "", nil)
	store.ledger.On("LockProducts", mock.Anything, []string{"X"}).
		Return(products(domain.Product{ID: "X", Price: 10}), nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 10}, nil).Once()
	store.ledger.On("LiveBatches", mock.Anything, "X").
		Return([]domain.StockBatch{{ID: "b1", QuantityRemaining: 10, Sequence: 1}}, nil)
	store.ledger.On("DeductFromBatch", mock.Anything, "b1", 1, domain.MovementSale, mock.Anything).Return(nil)
	store.sales.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 9}, nil).Once()
	idem.On("Complete", mock.Anything, "key-1", "sale-1", time.Hour).Return(nil)

	result, replayed, err := svc.CheckoutIdempotent(context.Background(), "key-1", []domain.CartLine{{ProductID: "X", Quantity: 1}})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "sale-1", result.Sale.ID)
	idem.AssertExpectations(t)
}

func TestCheckoutIdempotent_Replay(t *testing.T) {
	store := newFakeStore()
	idem := new(mockIdem)
	svc := newTestCheckout(store, nil, idem)

	sale := domain.NewSale("sale-0", fixedNow, []domain.SaleLine{{ProductID: "X", Quantity: 2, PriceAtSale: 10}})
	idem.On("Reserve", mock.Anything, "key-1", time.Hour).Return(false, "sale-0", nil)
	store.sales.On("GetByID", mock.Anything, "sale-0").Return(sale, nil)
	store.ledger.On("SumLive", mock.Anything, []string{"X"}).Return(map[string]int{"X": 8}, nil)

	result, replayed, err := svc.CheckoutIdempotent(context.Background(), "key-1", []domain.CartLine{{ProductID: "X", Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "sale-0", result.Sale.ID)
	assert.Equal(t, 8, result.UpdatedOnHand["X"])
	assert.Zero(t, store.commits+store.rollbacks)
}

func TestCheckoutIdempotent_InProgress(t *testing.T) {
	store := newFakeStore()
	idem := new(mockIdem)
	svc := newTestCheckout(store, nil, idem)

	idem.On("Reserve", mock.Anything, "key-1", time.Hour).Return(false, "", nil)

	_, _, err := svc.CheckoutIdempotent(context.Background(), "key-1", []domain.CartLine{{ProductID: "X", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrCheckoutInProgress)
}

func TestCheckoutIdempotent_ReleasesKeyOnFailure(t *testing.T) {
	store := newFakeStore()
	idem := new(mockIdem)
	svc := newTestCheckout(store, nil, idem)

	idem.On("Reserve", mock.Anything, "key-1", time.Hour).Return(true, "", nil)
	idem.On("Release", mock.Anything, "key-1").Return(nil)

	_, _, err := svc.CheckoutIdempotent(context.Background(), "key-1", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	idem.AssertExpectations(t)
	idem.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutIdempotent_StoreDownFallsBack(t *testing.T) {
	store := newFakeStore()
	idem := new(mockIdem)
	svc := newTestCheckout(store, nil, idem)

	idem.On("Reserve", mock.Anything, "key-1", time.Hour).Return(false, "", errors.New("redis down"))

	_, replayed, err := svc.CheckoutIdempotent(context.Background(), "key-1", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.False(t, replayed)
	idem.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestCheckoutService_Sales(t *testing.T) {
	store := newFakeStore()
	svc := newTestCheckout(store, nil, nil)

	sale := domain.NewSale("s1", fixedNow, nil)
	store.sales.On("GetByID", mock.Anything, "s1").Return(sale, nil)
	store.sales.On("List", mock.Anything, 20, 40).Return([]domain.Sale{*sale}, 41, nil)

	got, err := svc.GetSale(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	list, total, err := svc.ListSales(context.Background(), 20, 40)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 41, total)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, outcomeCommitted, outcome(nil))
	assert.Equal(t, outcomeRace, outcome(domain.ErrStockRaceDetected))
	assert.Equal(t, outcomeRejected, outcome(&domain.InsufficientStockError{}))
	assert.Equal(t, outcomeRejected, outcome(domain.ErrAmountOutOfRange))
	assert.Equal(t, outcomeRejected, outcome(domain.ErrEmptyCart))
	assert.Equal(t, outcomeError, outcome(errors.New("boom")))
}

func dateOf(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

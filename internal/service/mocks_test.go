package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
)

// --- Mock LedgerRepository ---

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Product), args.Error(1)
}

func (m *mockLedger) LiveBatches(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StockBatch), args.Error(1)
}

func (m *mockLedger) ListBatches(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StockBatch), args.Error(1)
}

func (m *mockLedger) AppendReceipt(ctx context.Context, receipt domain.Receipt) (*domain.StockBatch, error) {
	args := m.Called(ctx, receipt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockBatch), args.Error(1)
}

func (m *mockLedger) DeductFromBatch(ctx context.Context, batchID string, quantity int, kind domain.MovementKind, refID *string) error {
	args := m.Called(ctx, batchID, quantity, kind, refID)
	return args.Error(0)
}

func (m *mockLedger) SumLive(ctx context.Context, ids []string) (map[string]int, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Copy so callers mutating the map do not change later returns.
	src := args.Get(0).(map[string]int)
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, args.Error(1)
}

func (m *mockLedger) ListMovements(ctx context.Context, productID string, afterID int64, limit int) ([]domain.StockMovement, error) {
	args := m.Called(ctx, productID, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StockMovement), args.Error(1)
}

// --- Mock CatalogRepository ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) CreateProduct(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockCatalog) ListProducts(ctx context.Context) ([]domain.ProductStock, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProductStock), args.Error(1)
}

func (m *mockCatalog) CreateCategory(ctx context.Context, category *domain.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *mockCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

// --- Mock SaleRepository ---

type mockSales struct {
	mock.Mock
}

func (m *mockSales) Create(ctx context.Context, sale *domain.Sale) error {
	args := m.Called(ctx, sale)
	return args.Error(0)
}

func (m *mockSales) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Sale), args.Error(1)
}

func (m *mockSales) List(ctx context.Context, limit, offset int) ([]domain.Sale, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Sale), args.Int(1), args.Error(2)
}

// --- Fake Store ---

// fakeStore hands the same mocks to pool and transaction callers and
// counts how transactions ended.
type fakeStore struct {
	ledger  *mockLedger
	catalog *mockCatalog
	sales   *mockSales

	commits   int
	rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{ledger: new(mockLedger), catalog: new(mockCatalog), sales: new(mockSales)}
}

func (s *fakeStore) Ledger() repository.LedgerRepository   { return s.ledger }
func (s *fakeStore) Catalog() repository.CatalogRepository { return s.catalog }
func (s *fakeStore) Sales() repository.SaleRepository      { return s.sales }

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	if err := fn(ctx, s); err != nil {
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

// --- Mock EventPublisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishSaleCompleted(ctx context.Context, sale *domain.Sale) error {
	args := m.Called(ctx, sale)
	return args.Error(0)
}

func (m *mockEvents) PublishStockReceived(ctx context.Context, batch *domain.StockBatch, onHand int) error {
	args := m.Called(ctx, batch, onHand)
	return args.Error(0)
}

func (m *mockEvents) PublishStockCorrected(ctx context.Context, productID string, delta, onHand int) error {
	args := m.Called(ctx, productID, delta, onHand)
	return args.Error(0)
}

func (m *mockEvents) PublishLowStock(ctx context.Context, productID string, onHand, threshold int) error {
	args := m.Called(ctx, productID, onHand, threshold)
	return args.Error(0)
}

// --- Mock IdempotencyStore ---

type mockIdem struct {
	mock.Mock
}

func (m *mockIdem) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *mockIdem) Complete(ctx context.Context, key, saleID string, ttl time.Duration) error {
	args := m.Called(ctx, key, saleID, ttl)
	return args.Error(0)
}

func (m *mockIdem) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(s string) *string { return &s }

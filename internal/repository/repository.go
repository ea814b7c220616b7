package repository

import (
	"context"
	"time"

	"github.com/utafrali/posledger/internal/domain"
)

// LedgerRepository persists stock batches and their movements.
type LedgerRepository interface {
	// LockProducts locks the product rows for ids, in sorted id order, until
	// the surrounding transaction ends, and returns the rows that exist.
	// Missing ids are absent from the map.
	LockProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)

	// LiveBatches returns batches with stock left, in consumption order.
	LiveBatches(ctx context.Context, productID string) ([]domain.StockBatch, error)

	// ListBatches returns every batch of a product, used up ones included,
	// in receipt order.
	ListBatches(ctx context.Context, productID string) ([]domain.StockBatch, error)

	// AppendReceipt inserts a new batch and its receipt movement.
	AppendReceipt(ctx context.Context, receipt domain.Receipt) (*domain.StockBatch, error)

	// DeductFromBatch lowers one batch by quantity and records a movement of
	// the given kind. It fails with domain.ErrInsufficientBatchQuantity when
	// the batch holds less than quantity.
	DeductFromBatch(ctx context.Context, batchID string, quantity int, kind domain.MovementKind, refID *string) error

	// SumLive returns on-hand per product in one query. Products without
	// live batches map to zero.
	SumLive(ctx context.Context, productIDs []string) (map[string]int, error)

	// ListMovements returns up to limit movements of a product with id
	// greater than afterID, oldest first.
	ListMovements(ctx context.Context, productID string, afterID int64, limit int) ([]domain.StockMovement, error)
}

// CatalogRepository persists products and categories.
type CatalogRepository interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.ProductStock, error)
	CreateCategory(ctx context.Context, category *domain.Category) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// SaleRepository persists completed sales.
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	GetByID(ctx context.Context, id string) (*domain.Sale, error)
	// List returns a page of sales, newest first, and the total count.
	List(ctx context.Context, limit, offset int) ([]domain.Sale, int, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Ledger() LedgerRepository
	Catalog() CatalogRepository
	Sales() SaleRepository
}

// Store hands out pool-backed repositories and runs units of work in a
// transaction. InTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// IdempotencyStore remembers checkout idempotency keys.
type IdempotencyStore interface {
	// Reserve claims key. When the key was already claimed it returns
	// claimed=false and the sale id recorded for it, which is empty while
	// the first request is still in flight.
	Reserve(ctx context.Context, key string, ttl time.Duration) (claimed bool, saleID string, err error)
	// Complete records the sale produced under key.
	Complete(ctx context.Context, key, saleID string, ttl time.Duration) error
	// Release forgets key so the client may retry after a failure.
	Release(ctx context.Context, key string) error
}

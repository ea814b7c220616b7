package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/pkg/database"
)

const batchColumns = `id, product_id, quantity_received, quantity_remaining, unit_cost, expiry_date, received_at, sequence`

// LedgerRepository implements repository.LedgerRepository on a pool or on
// a transaction, whichever DBTX it was built with.
type LedgerRepository struct {
	db database.DBTX
}

// NewLedgerRepository creates a ledger repository.
func NewLedgerRepository(db database.DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// LockProducts takes row locks on the products in sorted id order so that
// two checkouts sharing products always queue instead of deadlocking.
func (r *LedgerRepository) LockProducts(ctx context.Context, productIDs []string) (_ map[string]domain.Product, err error) {
	ids := sortedUnique(productIDs)
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "LockProducts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	locked := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked product: %w", err)
		}
		locked[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked products: %w", err)
	}
	return locked, nil
}

// LiveBatches returns batches with stock left, earliest expiry first and
// undated batches last, ties broken by receipt sequence.
func (r *LedgerRepository) LiveBatches(ctx context.Context, productID string) (_ []domain.StockBatch, err error) {
	query := `
		SELECT ` + batchColumns + `
		FROM stock_batches
		WHERE product_id = $1 AND quantity_remaining > 0
		ORDER BY expiry_date ASC NULLS LAST, sequence ASC`

	ctx, end := database.TraceQuery(ctx, "LiveBatches", query)
	defer func() { end(err) }()

	return r.queryBatches(ctx, query, productID)
}

// ListBatches returns every batch of a product in receipt order.
func (r *LedgerRepository) ListBatches(ctx context.Context, productID string) (_ []domain.StockBatch, err error) {
	query := `
		SELECT ` + batchColumns + `
		FROM stock_batches
		WHERE product_id = $1
		ORDER BY sequence ASC`

	ctx, end := database.TraceQuery(ctx, "ListBatches", query)
	defer func() { end(err) }()

	return r.queryBatches(ctx, query, productID)
}

func (r *LedgerRepository) queryBatches(ctx context.Context, query string, args ...any) ([]domain.StockBatch, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.StockBatch
	for rows.Next() {
		var b domain.StockBatch
		if err := rows.Scan(
			&b.ID,
			&b.ProductID,
			&b.QuantityReceived,
			&b.QuantityRemaining,
			&b.UnitCost,
			&b.ExpiryDate,
			&b.ReceivedAt,
			&b.Sequence,
		); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// AppendReceipt inserts a batch and its positive movement.
func (r *LedgerRepository) AppendReceipt(ctx context.Context, receipt domain.Receipt) (_ *domain.StockBatch, err error) {
	if err := receipt.Validate(); err != nil {
		return nil, err
	}

	insertBatch := `
		INSERT INTO stock_batches (id, product_id, quantity_received, quantity_remaining, unit_cost, expiry_date, received_at)
		VALUES ($1, $2, $3, $3, $4, $5, $6)
		RETURNING ` + batchColumns

	ctx, end := database.TraceQuery(ctx, "AppendReceipt", insertBatch)
	defer func() { end(err) }()

	var b domain.StockBatch
	err = r.db.QueryRow(ctx, insertBatch,
		uuid.NewString(),
		receipt.ProductID,
		receipt.Quantity,
		receipt.UnitCost,
		receipt.ExpiryDate,
		time.Now().UTC(),
	).Scan(
		&b.ID,
		&b.ProductID,
		&b.QuantityReceived,
		&b.QuantityRemaining,
		&b.UnitCost,
		&b.ExpiryDate,
		&b.ReceivedAt,
		&b.Sequence,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, &domain.UnknownProductError{ProductID: receipt.ProductID}
		}
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	if err := r.appendMovement(ctx, b.ProductID, b.ID, receipt.MovementKind(), b.QuantityReceived, receipt.ReferenceID); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeductFromBatch lowers a batch only if it still holds quantity, so a stale
// plan can never drive quantity_remaining negative.
func (r *LedgerRepository) DeductFromBatch(ctx context.Context, batchID string, quantity int, kind domain.MovementKind, refID *string) (err error) {
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return fmt.Errorf("%w: deduct %d from batch %s", domain.ErrInvalidQuantity, quantity, batchID)
	}
	if !kind.Valid() || kind == domain.MovementReceipt {
		return fmt.Errorf("deduct from batch: invalid movement kind %q", kind)
	}

	query := `
		UPDATE stock_batches
		SET quantity_remaining = quantity_remaining - $2
		WHERE id = $1 AND quantity_remaining >= $2
		RETURNING product_id`

	ctx, end := database.TraceQuery(ctx, "DeductFromBatch", query)
	defer func() { end(err) }()

	var productID string
	if err := r.db.QueryRow(ctx, query, batchID, quantity).Scan(&productID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: batch %s, wanted %d", domain.ErrInsufficientBatchQuantity, batchID, quantity)
		}
		return fmt.Errorf("deduct from batch: %w", err)
	}

	return r.appendMovement(ctx, productID, batchID, kind, -quantity, refID)
}

func (r *LedgerRepository) appendMovement(ctx context.Context, productID, batchID string, kind domain.MovementKind, change int, refID *string) error {
	query := `
		INSERT INTO stock_movements (product_id, batch_id, kind, quantity_change, reference_id)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query, productID, batchID, string(kind), change, refID); err != nil {
		return fmt.Errorf("insert %s movement: %w", kind, err)
	}
	return nil
}

// SumLive sums live batch quantities for all ids in one statement, so every
// product is read from the same snapshot.
func (r *LedgerRepository) SumLive(ctx context.Context, productIDs []string) (_ map[string]int, err error) {
	ids := sortedUnique(productIDs)
	onHand := make(map[string]int, len(ids))
	for _, id := range ids {
		onHand[id] = 0
	}
	if len(ids) == 0 {
		return onHand, nil
	}

	query := `
		SELECT product_id, COALESCE(SUM(quantity_remaining), 0)::bigint
		FROM stock_batches
		WHERE product_id = ANY($1) AND quantity_remaining > 0
		GROUP BY product_id`

	ctx, end := database.TraceQuery(ctx, "SumLive", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("sum live stock: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("scan on-hand: %w", err)
		}
		onHand[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate on-hand: %w", err)
	}
	return onHand, nil
}

// ListMovements returns one keyset page of a product's movements.
func (r *LedgerRepository) ListMovements(ctx context.Context, productID string, afterID int64, limit int) (_ []domain.StockMovement, err error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, product_id, batch_id, kind, quantity_change, reference_id, created_at
		FROM stock_movements
		WHERE product_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`

	ctx, end := database.TraceQuery(ctx, "ListMovements", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, productID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var (
			m    domain.StockMovement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BatchID, &kind, &m.QuantityChange, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Kind = domain.MovementKind(kind)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/pkg/database"
	apperrors "github.com/utafrali/posledger/pkg/errors"
)

// SaleRepository implements repository.SaleRepository.
type SaleRepository struct {
	db database.DBTX
}

// NewSaleRepository creates a sale repository.
func NewSaleRepository(db database.DBTX) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create inserts the sale header followed by its lines. Run it inside a
// transaction so a sale is never visible without its lines.
func (r *SaleRepository) Create(ctx context.Context, sale *domain.Sale) (err error) {
	header := `INSERT INTO sales (id, total, created_at) VALUES ($1, $2, $3)`

	ctx, end := database.TraceQuery(ctx, "CreateSale", header)
	defer func() { end(err) }()

	if _, err := r.db.Exec(ctx, header, sale.ID, sale.Total, sale.CreatedAt); err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	line := `
		INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, price_at_sale)
		VALUES ($1, $2, $3, $4, $5)`
	for _, l := range sale.Lines {
		if _, err := r.db.Exec(ctx, line, sale.ID, l.LineNo, l.ProductID, l.Quantity, l.PriceAtSale); err != nil {
			return fmt.Errorf("insert sale line %d: %w", l.LineNo, err)
		}
	}
	return nil
}

// GetByID returns a sale with its lines.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	var s domain.Sale
	err := r.db.QueryRow(ctx, `SELECT id, total, created_at FROM sales WHERE id = $1`, id).
		Scan(&s.ID, &s.Total, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("sale", id)
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	lines, err := r.linesFor(ctx, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Lines = lines[s.ID]
	return &s, nil
}

// List returns a page of sales, newest first, with lines attached.
func (r *SaleRepository) List(ctx context.Context, limit, offset int) ([]domain.Sale, int, error) {
	query := `
		SELECT id, total, created_at, count(*) OVER() AS total_count
		FROM sales
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var (
		sales      []domain.Sale
		ids        []string
		totalCount int
	)
	for rows.Next() {
		var s domain.Sale
		if err := rows.Scan(&s.ID, &s.Total, &s.CreatedAt, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sales: %w", err)
	}
	if len(sales) == 0 {
		return sales, totalCount, nil
	}

	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return sales, totalCount, nil
}

func (r *SaleRepository) linesFor(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLine, error) {
	query := `
		SELECT sale_id, line_no, product_id, quantity, price_at_sale
		FROM sale_lines
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no`

	rows, err := r.db.Query(ctx, query, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("list sale lines: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.SaleLine, len(saleIDs))
	for rows.Next() {
		var (
			saleID string
			l      domain.SaleLine
		)
		if err := rows.Scan(&saleID, &l.LineNo, &l.ProductID, &l.Quantity, &l.PriceAtSale); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		out[saleID] = append(out[saleID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale lines: %w", err)
	}
	return out, nil
}

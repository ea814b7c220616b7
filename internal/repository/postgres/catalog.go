package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/pkg/database"
	apperrors "github.com/utafrali/posledger/pkg/errors"
)

const productColumns = `id, name, symbol, category_id, price, created_at`

// CatalogRepository implements repository.CatalogRepository.
type CatalogRepository struct {
	db database.DBTX
}

// NewCatalogRepository creates a catalog repository.
func NewCatalogRepository(db database.DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Symbol, &p.CategoryID, &p.Price, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a product. The barcode must be unused and the
// category, when set, must exist.
func (r *CatalogRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Symbol,
		product.CategoryID,
		product.Price,
		product.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return apperrors.AlreadyExists("product", "barcode", product.ID)
	case database.IsForeignKeyViolation(err):
		return apperrors.InvalidInput("category does not exist")
	default:
		return fmt.Errorf("insert product: %w", err)
	}
}

// GetProduct returns the product with the given barcode.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts returns every product with its live on-hand, ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]domain.ProductStock, error) {
	query := `
		SELECT p.id, p.name, p.symbol, p.category_id, p.price, p.created_at,
		       COALESCE(SUM(b.quantity_remaining), 0)::bigint AS on_hand
		FROM products p
		LEFT JOIN stock_batches b ON b.product_id = p.id AND b.quantity_remaining > 0
		GROUP BY p.id
		ORDER BY p.name, p.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.ProductStock, 0)
	for rows.Next() {
		var ps domain.ProductStock
		if err := rows.Scan(
			&ps.ID,
			&ps.Name,
			&ps.Symbol,
			&ps.CategoryID,
			&ps.Price,
			&ps.CreatedAt,
			&ps.OnHand,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// CreateCategory inserts a category and fills in its generated id.
func (r *CatalogRepository) CreateCategory(ctx context.Context, category *domain.Category) error {
	query := `
		INSERT INTO categories (name, emoji)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, category.Name, category.Emoji).Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("category", "name", category.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, emoji, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

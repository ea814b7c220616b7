package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/internal/repository"
	apperrors "github.com/utafrali/posledger/pkg/errors"
)

// CatalogService manages products and categories.
type CatalogService struct {
	store  repository.Store
	events EventPublisher
	logger *slog.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(store repository.Store, events EventPublisher, logger *slog.Logger) *CatalogService {
	return &CatalogService{store: store, events: events, logger: logger}
}

// CreateProduct adds a product and, when initialStock is positive, its
// first batch costed at the selling price, in one transaction.
func (s *CatalogService) CreateProduct(ctx context.Context, product *domain.Product, initialStock int) (*domain.ProductStock, error) {
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" {
		return nil, apperrors.InvalidInput("barcode is required")
	}
	if product.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if product.Price < 0 {
		return nil, apperrors.InvalidInput("price must be non-negative")
	}
	if product.Price > domain.MaxPrice {
		return nil, apperrors.InvalidInput("price is too large")
	}
	if initialStock < 0 || initialStock > domain.MaxQuantity {
		return nil, apperrors.InvalidInput("initial stock must be between 0 and 2147483647")
	}

	var batch *domain.StockBatch
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if err := tx.Catalog().CreateProduct(ctx, product); err != nil {
			return err
		}
		if initialStock == 0 {
			return nil
		}

		var err error
		batch, err = tx.Ledger().AppendReceipt(ctx, domain.Receipt{
			ProductID: product.ID,
			Quantity:  initialStock,
			UnitCost:  product.Price,
		})
		if err != nil {
			return fmt.Errorf("append initial stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	if batch != nil {
		unitsReceivedTotal.WithLabelValues(string(domain.MovementReceipt)).Add(float64(initialStock))
		if s.events != nil {
			if err := s.events.PublishStockReceived(ctx, batch, initialStock); err != nil {
				s.logger.ErrorContext(ctx, "failed to publish stock.received event",
					slog.String("product_id", product.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.Int64("price", product.Price),
		slog.Int("initial_stock", initialStock),
	)
	return &domain.ProductStock{Product: *product, OnHand: initialStock}, nil
}

// GetProduct returns a product with its on-hand.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.ProductStock, error) {
	product, err := s.store.Catalog().GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	onHand, err := NewStockAggregator(s.store.Ledger()).OnHand(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ProductStock{Product: *product, OnHand: onHand}, nil
}

// ListProducts returns every product with its on-hand, ordered by name.
func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.ProductStock, error) {
	products, err := s.store.Catalog().ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// CreateCategory adds a category.
func (s *CatalogService) CreateCategory(ctx context.Context, category *domain.Category) error {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return apperrors.InvalidInput("category name is required")
	}
	if err := s.store.Catalog().CreateCategory(ctx, category); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "category created",
		slog.Int64("category_id", category.ID),
		slog.String("name", category.Name),
	)
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.store.Catalog().ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

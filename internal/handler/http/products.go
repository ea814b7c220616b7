package http

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/pkg/httputil"
	"github.com/utafrali/posledger/pkg/pagination"
	"github.com/utafrali/posledger/pkg/validator"
)

// CatalogService is the catalog behaviour the product endpoints need.
type CatalogService interface {
	CreateProduct(ctx context.Context, product *domain.Product, initialStock int) (*domain.ProductStock, error)
	GetProduct(ctx context.Context, id string) (*domain.ProductStock, error)
	ListProducts(ctx context.Context) ([]domain.ProductStock, error)
	CreateCategory(ctx context.Context, category *domain.Category) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// LedgerService is the stock behaviour the product endpoints need.
type LedgerService interface {
	ReceiveStock(ctx context.Context, receipt domain.Receipt) (*domain.StockBatch, int, error)
	CorrectStock(ctx context.Context, productID string, delta int) (int, error)
	OnHand(ctx context.Context, productID string) (int, error)
	ListBatches(ctx context.Context, productID string) ([]domain.StockBatch, error)
	ListMovements(ctx context.Context, productID string, afterID int64, pageSize int) iter.Seq2[domain.StockMovement, error]
}

// ProductHandler handles products, their stock and categories.
type ProductHandler struct {
	catalog CatalogService
	ledger  LedgerService
	logger  *slog.Logger
}

// NewProductHandler creates a product handler.
func NewProductHandler(catalog CatalogService, ledger LedgerService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, ledger: ledger, logger: logger}
}

func (h *ProductHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, toAppError(err), h.logger)
}

// CreateProduct handles POST /api/v1/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	price, err := parseMoney(req.Price)
	if err != nil {
		httputil.WriteBadParam(w, err.Error())
		return
	}

	product := &domain.Product{
		ID:         req.Barcode,
		Name:       req.Name,
		Symbol:     req.Symbol,
		CategoryID: req.CategoryID,
		Price:      price,
	}
	created, err := h.catalog.CreateProduct(r.Context(), product, req.InitialStock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: toProductResponse(*created)})
}

// ListProducts handles GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: out})
}

// GetProduct handles GET /api/v1/products/{productId}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toProductResponse(*product)})
}

// GetStock handles GET /api/v1/products/{productId}/stock
func (h *ProductHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	onHand, err := h.ledger.OnHand(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stockResponse{ProductID: productID, OnHand: onHand}})
}

// CorrectStock handles PUT /api/v1/products/{productId}/stock
func (h *ProductHandler) CorrectStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req CorrectStockRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	onHand, err := h.ledger.CorrectStock(r.Context(), productID, *req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stockResponse{ProductID: productID, OnHand: onHand}})
}

// ReceiveStock handles POST /api/v1/products/{productId}/batches
func (h *ProductHandler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req ReceiveStockRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	unitCost, err := parseMoney(req.UnitCost)
	if err != nil {
		httputil.WriteBadParam(w, err.Error())
		return
	}

	receipt := domain.Receipt{
		ProductID: chi.URLParam(r, "productId"),
		Quantity:  req.Quantity,
		UnitCost:  unitCost,
	}
	if req.ExpiryDate != "" {
		exp, err := time.Parse(dateLayout, req.ExpiryDate)
		if err != nil {
			httputil.WriteBadParam(w, "expiry_date must be YYYY-MM-DD")
			return
		}
		receipt.ExpiryDate = &exp
	}
	if req.Reference != "" {
		ref := req.Reference
		receipt.ReferenceID = &ref
	}

	batch, onHand, err := h.ledger.ReceiveStock(r.Context(), receipt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: receiveStockResponse{
		Batch:  toBatchResponse(*batch),
		OnHand: onHand,
	}})
}

// ListBatches handles GET /api/v1/products/{productId}/batches
func (h *ProductHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.ledger.ListBatches(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]batchResponse, len(batches))
	for i, b := range batches {
		out[i] = toBatchResponse(b)
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: out})
}

// ListMovements handles GET /api/v1/products/{productId}/movements?after=&limit=
func (h *ProductHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	cursor := pagination.CursorFromRequest(r)

	items := make([]domain.StockMovement, 0, cursor.Limit)
	for m, err := range h.ledger.ListMovements(r.Context(), chi.URLParam(r, "productId"), cursor.After, cursor.Limit) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items = append(items, m)
		if len(items) == cursor.Limit {
			break
		}
	}

	page := pagination.NewPage(items, cursor.Limit, func(m domain.StockMovement) int64 { return m.ID })
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: page})
}

// CreateCategory handles POST /api/v1/categories
func (h *ProductHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	category := &domain.Category{Name: req.Name, Emoji: req.Emoji}
	if err := h.catalog.CreateCategory(r.Context(), category); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: category})
}

// ListCategories handles GET /api/v1/categories
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: categories})
}

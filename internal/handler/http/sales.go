package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/utafrali/posledger/internal/domain"
	"github.com/utafrali/posledger/pkg/httputil"
	"github.com/utafrali/posledger/pkg/pagination"
	"github.com/utafrali/posledger/pkg/validator"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
)

// CheckoutService is the checkout behaviour the sales endpoints need.
type CheckoutService interface {
	CheckoutIdempotent(ctx context.Context, key string, lines []domain.CartLine) (*domain.CheckoutResult, bool, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit, offset int) ([]domain.Sale, int, error)
}

// SaleHandler handles checkout and sales history.
type SaleHandler struct {
	service CheckoutService
	logger  *slog.Logger
}

// NewSaleHandler creates a sale handler.
func NewSaleHandler(svc CheckoutService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{service: svc, logger: logger}
}

// Checkout handles POST /api/v1/sales
func (h *SaleHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		httputil.WriteBadParam(w, "Idempotency-Key is too long")
		return
	}

	var req CheckoutRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	lines := make([]domain.CartLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	result, replayed, err := h.service.CheckoutIdempotent(r.Context(), key, lines)
	if err != nil {
		httputil.WriteError(w, r, toAppError(err), h.logger)
		return
	}

	status := http.StatusCreated
	if replayed {
		w.Header().Set(HeaderReplayed, "true")
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: checkoutResponse{
		Sale:          toSaleResponse(result.Sale),
		UpdatedOnHand: result.UpdatedOnHand,
	}})
}

// GetSale handles GET /api/v1/sales/{saleId}
func (h *SaleHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "saleId"))
	if err != nil {
		httputil.WriteBadParam(w, "sale id must be a UUID")
		return
	}

	sale, err := h.service.GetSale(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toSaleResponse(sale)})
}

// ListSales handles GET /api/v1/sales?page=&per_page=
func (h *SaleHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	sales, total, err := h.service.ListSales(r.Context(), params.PerPage, params.Offset)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	out := make([]saleResponse, len(sales))
	for i := range sales {
		out[i] = toSaleResponse(&sales[i])
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pagination.NewResult(out, total, params)})
}

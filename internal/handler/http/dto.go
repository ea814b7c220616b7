package http

import (
	"time"

	"github.com/utafrali/posledger/internal/domain"
)

// dateLayout is the wire format of expiry dates.
const dateLayout = "2006-01-02"

// --- Request DTOs ---

// CheckoutRequest is the body of POST /api/v1/sales. Emptiness and
// quantities are checked by the checkout itself so that the API reports
// EMPTY_CART and INVALID_QUANTITY.
type CheckoutRequest struct {
	Items []CartItemRequest `json:"items" validate:"dive"`
}

// CartItemRequest is one cart line.
type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity"`
}

// ReceiveStockRequest is the body of POST /api/v1/products/{productId}/batches.
type ReceiveStockRequest struct {
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	UnitCost   string `json:"unit_cost" validate:"required,money"`
	ExpiryDate string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Reference  string `json:"reference" validate:"omitempty,max=64"`
}

// CorrectStockRequest is the body of PUT /api/v1/products/{productId}/stock.
type CorrectStockRequest struct {
	Amount *int `json:"amount" validate:"required"`
}

// CreateProductRequest is the body of POST /api/v1/products.
type CreateProductRequest struct {
	Barcode      string `json:"barcode" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=200"`
	Symbol       string `json:"symbol" validate:"omitempty,max=16"`
	CategoryID   *int64 `json:"category_id" validate:"omitempty,gt=0"`
	Price        string `json:"price" validate:"required,money"`
	InitialStock int    `json:"initial_stock" validate:"gte=0,lte=2147483647"`
}

// CreateCategoryRequest is the body of POST /api/v1/categories.
type CreateCategoryRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Emoji string `json:"emoji" validate:"omitempty,max=16"`
}

// --- Response DTOs ---

type productResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	CategoryID *int64    `json:"category_id,omitempty"`
	Price      string    `json:"price"`
	OnHand     int       `json:"on_hand"`
	CreatedAt  time.Time `json:"created_at"`
}

func toProductResponse(p domain.ProductStock) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Symbol:     p.Symbol,
		CategoryID: p.CategoryID,
		Price:      formatMoney(p.Price),
		OnHand:     p.OnHand,
		CreatedAt:  p.CreatedAt,
	}
}

type batchResponse struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	QuantityReceived  int       `json:"quantity_received"`
	QuantityRemaining int       `json:"quantity_remaining"`
	UnitCost          string    `json:"unit_cost"`
	ExpiryDate        *string   `json:"expiry_date,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
	Sequence          int64     `json:"sequence"`
}

func toBatchResponse(b domain.StockBatch) batchResponse {
	resp := batchResponse{
		ID:                b.ID,
		ProductID:         b.ProductID,
		QuantityReceived:  b.QuantityReceived,
		QuantityRemaining: b.QuantityRemaining,
		UnitCost:          formatMoney(b.UnitCost),
		ReceivedAt:        b.ReceivedAt,
		Sequence:          b.Sequence,
	}
	if b.ExpiryDate != nil {
		exp := b.ExpiryDate.Format(dateLayout)
		resp.ExpiryDate = &exp
	}
	return resp
}

type receiveStockResponse struct {
	Batch  batchResponse `json:"batch"`
	OnHand int           `json:"on_hand"`
}

type stockResponse struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
}

type saleLineResponse struct {
	LineNo      int    `json:"line_no"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	PriceAtSale string `json:"price_at_sale"`
	Subtotal    string `json:"subtotal"`
}

type saleResponse struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Total     string             `json:"total"`
	Lines     []saleLineResponse `json:"lines"`
}

func toSaleResponse(s *domain.Sale) saleResponse {
	resp := saleResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Total:     formatMoney(s.Total),
		Lines:     make([]saleLineResponse, len(s.Lines)),
	}
	for i, l := range s.Lines {
		resp.Lines[i] = saleLineResponse{
			LineNo:      l.LineNo,
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			PriceAtSale: formatMoney(l.PriceAtSale),
			Subtotal:    formatMoney(l.Subtotal()),
		}
	}
	return resp
}

type checkoutResponse struct {
	Sale          saleResponse   `json:"sale"`
	UpdatedOnHand map[string]int `json:"updated_on_hand"`
}

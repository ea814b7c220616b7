package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/posledger/internal/domain"
	pkgkafka "github.com/utafrali/posledger/pkg/kafka"
)

// TopicGoodsReceived carries deliveries booked by the purchasing system.
var TopicGoodsReceived = pkgkafka.Topic("purchasing", "goods_received")

// expiryLayout is the date format of GoodsReceivedData.ExpiryDate.
const expiryLayout = "2006-01-02"

// StockReceiver is what the consumer needs from the ledger service.
type StockReceiver interface {
	ReceiveStock(ctx context.Context, receipt domain.Receipt) (*domain.StockBatch, int, error)
}

// GoodsReceivedData is the expected goods_received payload. UnitCost is in
// minor units.
type GoodsReceivedData struct {
	PurchaseOrderID string  `json:"purchase_order_id"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	UnitCost        int64   `json:"unit_cost"`
	ExpiryDate      *string `json:"expiry_date,omitempty"`
}

// Consumer turns purchasing events into stock receipts.
type Consumer struct {
	service StockReceiver
	logger  *slog.Logger
}

// NewConsumer creates a goods-received consumer.
func NewConsumer(service StockReceiver, logger *slog.Logger) *Consumer {
	return &Consumer{service: service, logger: logger}
}

// HandleGoodsReceived records one delivery as a new batch. Malformed
// payloads and receipts the ledger rejects are marked permanent so the
// message is not retried.
func (c *Consumer) HandleGoodsReceived(ctx context.Context, ev *pkgkafka.Event) error {
	var data GoodsReceivedData
	if err := ev.UnmarshalData(&data); err != nil {
		return fmt.Errorf("%w: unmarshal goods_received data: %w", pkgkafka.ErrPermanent, err)
	}

	receipt := domain.Receipt{
		ProductID: data.ProductID,
		Quantity:  data.Quantity,
		UnitCost:  data.UnitCost,
	}
	if data.PurchaseOrderID != "" {
		ref := data.PurchaseOrderID
		receipt.ReferenceID = &ref
	}
	if data.ExpiryDate != nil && *data.ExpiryDate != "" {
		exp, err := time.Parse(expiryLayout, *data.ExpiryDate)
		if err != nil {
			return fmt.Errorf("%w: parse expiry date: %w", pkgkafka.ErrPermanent, err)
		}
		receipt.ExpiryDate = &exp
	}

	batch, onHand, err := c.service.ReceiveStock(ctx, receipt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuantity) || errors.Is(err, domain.ErrUnknownProduct) {
			return fmt.Errorf("%w: receive stock for %q: %w", pkgkafka.ErrPermanent, data.ProductID, err)
		}
		return fmt.Errorf("receive stock for %q: %w", data.ProductID, err)
	}

	c.logger.InfoContext(ctx, "goods received",
		slog.String("purchase_order_id", data.PurchaseOrderID),
		slog.String("product_id", batch.ProductID),
		slog.String("batch_id", batch.ID),
		slog.Int("quantity", batch.QuantityReceived),
		slog.Int("on_hand", onHand),
	)
	return nil
}

package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/posledger/internal/domain"
	pkgkafka "github.com/utafrali/posledger/pkg/kafka"
	"github.com/utafrali/posledger/pkg/logger"
)

// Topics this service publishes to.
var (
	TopicSaleCompleted  = pkgkafka.Topic("sale", "completed")
	TopicStockReceived  = pkgkafka.Topic("stock", "received")
	TopicStockCorrected = pkgkafka.Topic("stock", "corrected")
	TopicStockLow       = pkgkafka.Topic("stock", "low")
)

const (
	AggregateTypeSale    = "sale"
	AggregateTypeProduct = "product"
	SourceLedgerService  = "posledger"
)

// SaleCompletedData is the sale.completed payload.
type SaleCompletedData struct {
	SaleID    string            `json:"sale_id"`
	Total     int64             `json:"total"`
	Lines     []domain.SaleLine `json:"lines"`
	CreatedAt time.Time         `json:"created_at"`
}

// StockReceivedData is the stock.received payload.
type StockReceivedData struct {
	ProductID  string     `json:"product_id"`
	BatchID    string     `json:"batch_id"`
	Quantity   int        `json:"quantity"`
	UnitCost   int64      `json:"unit_cost"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	OnHand     int        `json:"on_hand"`
}

// StockCorrectedData is the stock.corrected payload.
type StockCorrectedData struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	OnHand    int    `json:"on_hand"`
}

// StockLowData is the stock.low payload.
type StockLowData struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
	Threshold int    `json:"threshold"`
}

// Publisher is the subset of pkg/kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes ledger events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a ledger event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID, aggregateType string, data any) error {
	ev, err := pkgkafka.NewEvent(eventType, aggregateID, aggregateType, SourceLedgerService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if err := p.publisher.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// PublishSaleCompleted announces a committed sale.
func (p *Producer) PublishSaleCompleted(ctx context.Context, sale *domain.Sale) error {
	return p.publish(ctx, TopicSaleCompleted, "sale.completed", sale.ID, AggregateTypeSale, SaleCompletedData{
		SaleID:    sale.ID,
		Total:     sale.Total,
		Lines:     sale.Lines,
		CreatedAt: sale.CreatedAt,
	})
}

// PublishStockReceived announces a new batch.
func (p *Producer) PublishStockReceived(ctx context.Context, batch *domain.StockBatch, onHand int) error {
	return p.publish(ctx, TopicStockReceived, "stock.received", batch.ProductID, AggregateTypeProduct, StockReceivedData{
		ProductID:  batch.ProductID,
		BatchID:    batch.ID,
		Quantity:   batch.QuantityReceived,
		UnitCost:   batch.UnitCost,
		ExpiryDate: batch.ExpiryDate,
		OnHand:     onHand,
	})
}

// PublishStockCorrected announces a manual stock correction.
func (p *Producer) PublishStockCorrected(ctx context.Context, productID string, delta, onHand int) error {
	return p.publish(ctx, TopicStockCorrected, "stock.corrected", productID, AggregateTypeProduct, StockCorrectedData{
		ProductID: productID,
		Delta:     delta,
		OnHand:    onHand,
	})
}

// PublishLowStock announces that a product fell to or below threshold.
func (p *Producer) PublishLowStock(ctx context.Context, productID string, onHand, threshold int) error {
	return p.publish(ctx, TopicStockLow, "stock.low", productID, AggregateTypeProduct, StockLowData{
		ProductID: productID,
		OnHand:    onHand,
		Threshold: threshold,
	})
}

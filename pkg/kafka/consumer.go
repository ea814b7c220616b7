package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

const (
	maxHandlerAttempts = 3
	handlerBackoffUnit = 100 * time.Millisecond
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// ErrPermanent marks a handler failure that retrying cannot fix. The message
// is committed immediately instead of after the retry budget.
var ErrPermanent = errors.New("permanent handler failure")

// ConsumerConfig configures a consumer-group reader for a single topic.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// Consumer fetches, decodes and dispatches messages to a Handler, committing
// each offset once the handler succeeds or gives up.
type Consumer struct {
	reader    *kafka.Reader
	handler   Handler
	logger    *slog.Logger
	topic     string
	group     string
	closeOnce sync.Once
}

// NewConsumer creates a consumer; Start begins fetching.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
		handler: handler,
		logger:  logger,
		topic:   cfg.Topic,
		group:   cfg.GroupID,
	}
}

// Start blocks consuming until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("topic", c.topic), slog.String("group", c.group))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(c.topic, c.group).Inc()

		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// process handles one message and reports whether the caller should commit
// and keep going. It returns false only when ctx was cancelled mid-retry.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("dropping malformed event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		ConsumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
		return true
	}

	headers := msg.Headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&headers))

	start := time.Now()
	lastErr := c.handle(ctx, event, msg)
	if ctx.Err() != nil {
		return false
	}
	ConsumerProcessingDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		ConsumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
		c.logger.Error("handler failed, skipping message",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", lastErr.Error()),
		)
		return true
	}
	ConsumerMessagesProcessed.WithLabelValues(c.topic, c.group).Inc()
	return true
}

func (c *Consumer) handle(ctx context.Context, event *Event, msg kafka.Message) error {
	var lastErr error
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil || errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt == maxHandlerAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * handlerBackoffUnit):
		}
	}
	return lastErr
}

// Close closes the reader. Safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}

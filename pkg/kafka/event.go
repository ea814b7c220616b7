package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// SchemaVersion is the envelope version this service writes and the highest
// one it accepts.
const SchemaVersion = 1

// ErrMalformedEvent marks an envelope that can never be handled. It wraps
// ErrPermanent so consumers skip instead of retrying.
var ErrMalformedEvent = fmt.Errorf("%w: malformed event", ErrPermanent)

// Event is the envelope carried by every message on the ledger topics.
// Messages are keyed by AggregateID so one product's or sale's events stay
// on one partition in publish order.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent wraps data for aggregateType/aggregateID with a fresh id and a
// UTC timestamp.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       SchemaVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}, nil
}

// WithCorrelationID sets the correlation id and returns e.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Key is the partition key.
func (e *Event) Key() []byte {
	return []byte(e.AggregateID)
}

// headers lets consumers route on type and source without decoding the body.
func (e *Event) headers() []kafka.Header {
	h := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		h = append(h, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	return h
}

// Validate checks the fields every handler relies on.
func (e *Event) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	case e.EventType == "":
		return fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	case e.AggregateID == "":
		return fmt.Errorf("%w: missing aggregate_id", ErrMalformedEvent)
	case e.Version < 1 || e.Version > SchemaVersion:
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedEvent, e.Version)
	case len(e.Data) == 0 || string(e.Data) == "null":
		return fmt.Errorf("%w: %s has no data", ErrMalformedEvent, e.EventType)
	}
	return nil
}

// Marshal encodes the envelope.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes and validates an envelope.
func UnmarshalEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	if len(e.Data) == 0 {
		return errors.New("event has no data")
	}
	return json.Unmarshal(e.Data, target)
}

// TopicPrefix namespaces every topic this service touches.
const TopicPrefix = "posledger"

// Topic returns "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

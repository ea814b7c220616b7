package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRetryBackoff_WithinJitterBounds(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := connectBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - retryJitterFraction))
		hi := time.Duration(float64(base) * (1 + retryJitterFraction))
		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.False(t, isConnectionError(errors.New("syntax error at or near \"TABLE\"")))
}

func TestIsContention(t *testing.T) {
	for _, code := range []string{SQLStateSerializationFailure, SQLStateDeadlockDetected, SQLStateLockNotAvailable} {
		err := fmt.Errorf("consume batch: %w", &pgconn.PgError{Code: code})
		assert.True(t, IsContention(err), code)
	}
	assert.False(t, IsContention(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsContention(errors.New("plain")))
	assert.False(t, IsContention(nil))
}

func TestIsUniqueAndForeignKeyViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
}

func TestTraceQuery_RecordsSpanAndSlowQuery(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
		SetSlowQueryLogging(0, nil)
	})

	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewTextHandler(&buf, nil)))

	_, end := TraceQuery(context.Background(), "LiveBatches", "SELECT 1")
	time.Sleep(time.Millisecond)
	end(errors.New("boom"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.LiveBatches", spans[0].Name)
	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "boom")
}

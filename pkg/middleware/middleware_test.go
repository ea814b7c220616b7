package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/posledger/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRequestLogging_GeneratesCorrelationID(t *testing.T) {
	var seen string
	h := RequestLogging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderCorrelationID))
}

func TestRequestLogging_ReusesClientCorrelationID(t *testing.T) {
	h := RequestLogging(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get(HeaderCorrelationID))
}

func TestRequestLogger_EnrichesWithTerminal(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter("posledger", "info", &buf)

	h := RequestLogging(testLogger())(RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context(), nil).Info("inside")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTerminalID, "till-7")
	req.Header.Set(HeaderCorrelationID, "corr-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "till-7", out["terminal_id"])
	assert.Equal(t, "corr-1", out["correlation_id"])
}

func TestRecovery_WritesEnvelope(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(DefaultCORSConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://till.example"}})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://till.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://till.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIPAllowlist(t *testing.T) {
	h := IPAllowlist([]string{"10.0.0.0/8", "not-a-cidr"}, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.RemoteAddr = "192.168.1.1:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-test"))
	r.Get("/products/{productId}/stock", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/P1/stock", nil))

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("metrics-test", http.MethodGet, "/products/{productId}/stock", "418"))
	assert.Equal(t, float64(1), got)
}

// collectMetric returns the series of c whose labels include all of labels.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		have := make(map[string]string, len(d.GetLabel()))
		for _, lp := range d.GetLabel() {
			have[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, v := range labels {
			if have[k] != v {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

func TestPrometheusMetrics_ObservesLatency(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("latency-test"))
	r.Post("/sales", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for range 3 {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sales", nil))
	}

	m := collectMetric(t, httpRequestDuration, map[string]string{
		"service": "latency-test",
		"route":   "/sales",
		"status":  "201",
	})
	require.NotNil(t, m)
	assert.Equal(t, uint64(3), m.GetHistogram().GetSampleCount())

	inFlight := collectMetric(t, httpRequestsInFlight, map[string]string{"service": "latency-test"})
	require.NotNil(t, inFlight)
	assert.Equal(t, float64(0), inFlight.GetGauge().GetValue())
}

func TestTracing_PassesThroughStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Tracing("tracing-test"))
	r.Get("/x", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Checker reports the health of one dependency.
type Checker func(ctx context.Context) error

// Status is the health of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Response is the JSON body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single checker.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler serves liveness and readiness endpoints. Critical checkers failing
// make the service not ready (503); non-critical ones only degrade it.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
}

// NewHandler creates a health handler with a 5s readiness budget.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]registration),
		timeout:  5 * time.Second,
	}
}

// RegisterCritical adds a checker whose failure fails readiness.
func (h *Handler) RegisterCritical(name string, c Checker) {
	h.register(name, c, true)
}

// RegisterNonCritical adds a checker whose failure only degrades readiness.
func (h *Handler) RegisterNonCritical(name string, c Checker) {
	h.register(name, c, false)
}

func (h *Handler) register(name string, c Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = registration{check: c, critical: critical}
}

// LivenessHandler always returns 200 while the process runs.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler runs every checker and returns 200 (up or degraded) or 503.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		resp := h.Check(ctx)
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// Check runs all registered checkers in name order.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	regs := make(map[string]registration, len(h.checkers))
	for name, reg := range h.checkers {
		names = append(names, name)
		regs[name] = reg
	}
	h.mu.RUnlock()
	sort.Strings(names)

	resp := Response{Status: StatusUp, Timestamp: time.Now().UTC(), Checks: make(map[string]CheckResult, len(names))}
	for _, name := range names {
		reg := regs[name]
		if err := reg.check(ctx); err != nil {
			resp.Checks[name] = CheckResult{Status: StatusDown, Critical: reg.critical, Error: err.Error()}
			switch {
			case reg.critical:
				resp.Status = StatusDown
			case resp.Status == StatusUp:
				resp.Status = StatusDegraded
			}
			continue
		}
		resp.Checks[name] = CheckResult{Status: StatusUp, Critical: reg.critical}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

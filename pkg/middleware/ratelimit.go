package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/posledger/pkg/logger"
)

// RateLimitConfig sets a token bucket per client. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands out one limiter per client key and drops keys idle
// for longer than ttl. Sweeps happen on access, at most once per ttl.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiter(cfg RateLimitConfig) *clientLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	return &clientLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		ttl:     cfg.IdleTTL,
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.ttl {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.ttl {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *clientLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit rejects requests over the per-client rate with 429. A client is
// the till named by X-Terminal-ID, or the remote IP when the header is
// absent.
func RateLimit(cfg RateLimitConfig, l *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newClientLimiter(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !limiter.allow(key) {
				logger.FromContext(r.Context(), l).WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":      "RATE_LIMITED",
						"message":   "too many requests",
						"retryable": true,
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if terminal := r.Header.Get(HeaderTerminalID); terminal != "" {
		return "terminal:" + terminal
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

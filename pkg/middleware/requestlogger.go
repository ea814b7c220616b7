package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/posledger/pkg/logger"
)

// RequestLogger stores a request-scoped logger carrying correlation_id,
// terminal_id and trace ids in the context. Mount it after RequestLogging
// and Tracing so those values are already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if terminal := r.Header.Get(HeaderTerminalID); terminal != "" {
				ctx = logger.WithTerminalID(ctx, terminal)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

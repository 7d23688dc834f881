package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/kit"
)

// TraceID assigns a trace ID to each request, or keeps the caller's
// X-Trace-ID, and injects it into the context, the response headers and a
// per-request logger stored under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > 64 {
			traceID = idgen.TraceID()
		}

		ctx := kit.WithTransport(kit.WithTraceID(r.Context(), traceID), "http")
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

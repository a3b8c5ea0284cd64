package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type logFieldsContextKey struct{}

// logFields is filled in by handlers through AddLogField and emitted by
// Logging when the request completes.
type logFields struct {
	mu     sync.Mutex
	values map[string]string
}

// Logging emits one structured "http request" line per request.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := &logFields{values: map[string]string{}}
			ctx := context.WithValue(r.Context(), logFieldsContextKey{}, fields)
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r.WithContext(ctx))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			fields.mu.Lock()
			for k, v := range fields.values {
				attrs = append(attrs, k, v)
			}
			fields.mu.Unlock()

			logger.Info("http request", attrs...)
		})
	}
}

// AddLogField attaches key/value to the request log line. No-op outside
// Logging or when value is empty.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	fields, ok := ctx.Value(logFieldsContextKey{}).(*logFields)
	if !ok {
		return
	}
	fields.mu.Lock()
	fields.values[key] = value
	fields.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader carries the correlation id echoed on every response.
const requestIDHeader = "X-Request-ID"

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// ApplyMiddleware wraps h with recovery (innermost) and request logging.
func ApplyMiddleware(h http.Handler, logger *slog.Logger) http.Handler {
	return loggingMiddleware(logger, recoveryMiddleware(logger, h))
}

// loggingMiddleware assigns a request id and logs each request with method,
// path, status and duration. Health probes are logged at debug level.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if r.URL.Path == "/api/v1/health" {
			level = slog.LevelDebug
		}
		logger.Log(r.Context(), level, "http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

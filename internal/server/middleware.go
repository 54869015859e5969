package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// corsMiddleware allows the configured origins, or every origin when the
// allowlist is empty.
func corsMiddleware(originAllowlist []string) func(http.Handler) http.Handler {
	allowed := originAllowlist
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet},
	})
}

// requestLogger tags each request with a generated ID and logs its outcome
// at debug level.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			logger.Debug("request served",
				"id", uuid.NewString(),
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", time.Since(start).Round(time.Millisecond),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

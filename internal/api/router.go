package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/taxico2/internal/api/handlers"
	"github.com/wonny/taxico2/pkg/logger"
)

// NewRouter creates and configures the HTTP router. Every route is GET.
// A nil limiter disables request rate limiting.
// ⭐ SSOT: routes are only registered here
func NewRouter(h *handlers.AnalysisHandler, limiter *rate.Limiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/largest/{cab}", h.GetLargest).Methods(http.MethodGet)
	api.HandleFunc("/buckets/{cab}/{dimension}", h.GetBuckets).Methods(http.MethodGet)
	api.HandleFunc("/monthly", h.GetMonthly).Methods(http.MethodGet)

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	if limiter != nil {
		api.Use(rateLimitMiddleware(limiter, log))
	}

	return r
}

// statusRecorder captures the response status for request logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// rateLimitMiddleware rejects /api requests beyond the limiter's budget
// with 429. Health checks are never limited.
func rateLimitMiddleware(limiter *rate.Limiter, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.WithField("path", r.URL.Path).Warn("Rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiter builds the API limiter from requests per second and burst.
// A non-positive rate returns nil.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Package metrics provides Prometheus instrumentation for the risk service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SimulationsTotal counts Monte Carlo simulations, partitioned by variant.
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionfolio_simulations_total",
		Help: "Total Monte Carlo payoff simulations run",
	}, []string{"variant"})

	// SimulationDuration tracks how long a single 100k-path simulation takes.
	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optionfolio_simulation_duration_seconds",
		Help:    "Monte Carlo simulation duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// QuoteRequestsTotal counts market-data quote lookups by result.
	QuoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionfolio_quote_requests_total",
		Help: "Total market-data quote requests",
	}, []string{"result"})

	// RefreshDuration tracks full portfolio refresh (quotes + re-simulation).
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optionfolio_refresh_duration_seconds",
		Help:    "Portfolio market-data refresh duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optionfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optionfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations around an HTTP handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// Use the chi route pattern when available so position IDs and
		// portfolio names don't blow up label cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerEntriesTotal counts committed ledger mutations by entry kind.
	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monopoly_ledger_entries_total",
		Help: "Total number of committed ledger entries",
	}, []string{"kind"})

	// TradesTotal counts stock trades executed, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monopoly_trades_total",
		Help: "Total number of stock trades executed",
	}, []string{"side"})

	// TradeLots counts lots traded per stock symbol and side.
	TradeLots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monopoly_trade_lots_total",
		Help: "Cumulative lots traded",
	}, []string{"stock", "side"})

	// CommitLatency tracks how long a ledger commit takes end to end.
	CommitLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monopoly_commit_latency_seconds",
		Help:    "Ledger commit latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// RejectedOperations counts ledger calls refused by validation.
	RejectedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monopoly_rejected_operations_total",
		Help: "Ledger operations rejected before commit",
	}, []string{"reason"})

	// StoreFailures counts commits that failed in the persistence layer.
	StoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monopoly_store_failures_total",
		Help: "Ledger commits that failed in the store",
	})

	// PriceTicks counts applied market drift ticks.
	PriceTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monopoly_price_ticks_total",
		Help: "Market price drift ticks applied",
	})

	// CurrentRound tracks the game round number.
	CurrentRound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monopoly_current_round",
		Help: "Current game round",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monopoly_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monopoly_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monopoly_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

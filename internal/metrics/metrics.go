// Package metrics provides Prometheus instrumentation for the outcome engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts total trades executed, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcomebazaar_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// TradeRejections counts trades turned away before execution,
	// partitioned by reason (liquidity, pool_usage, balance, inactive).
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcomebazaar_trade_rejections_total",
		Help: "Trades rejected before execution",
	}, []string{"reason"})

	// PartialFills counts buys that were split into an instant and a
	// deferred portion.
	PartialFills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outcomebazaar_partial_fills_total",
		Help: "Buys split into instant and deferred portions",
	})

	// SettlementLatency tracks time spent waiting for backend confirmation.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outcomebazaar_settlement_latency_seconds",
		Help:    "Backend settlement confirmation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SettlementFailures counts settlement attempts that timed out or
	// were rejected, partitioned by outcome.
	SettlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcomebazaar_settlement_failures_total",
		Help: "Settlement attempts that did not confirm",
	}, []string{"outcome"})

	// PoolUsage tracks the fraction of the seeded pool committed per market.
	PoolUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outcomebazaar_pool_usage_ratio",
		Help: "Fraction of the seeded pool currently committed",
	}, []string{"market_id"})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outcomebazaar_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outcomebazaar_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcomebazaar_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outcomebazaar_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// MarketVolume tracks cumulative gross trade volume per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcomebazaar_market_volume_total",
		Help: "Cumulative gross trade volume",
	}, []string{"market_id", "side"})
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

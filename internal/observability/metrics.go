// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Session metrics
	SessionsRunning  prometheus.Gauge
	SessionsFinished *prometheus.CounterVec

	// Trading metrics
	PositionsOpened  *prometheus.CounterVec
	PositionsClosed  *prometheus.CounterVec
	SignalsGenerated *prometheus.CounterVec

	// Loop metrics
	TickDuration     prometheus.Histogram
	PriceFetchErrors prometheus.Counter

	// Database metrics
	JournalErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "paper_trading_lab"
	}

	return &Metrics{
		// Session metrics
		SessionsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "running",
			Help:      "Number of sessions currently running",
		}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "finished_total",
			Help:      "Total number of sessions finished by reason",
		}, []string{"reason"}),

		// Trading metrics
		PositionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "positions_opened_total",
			Help:      "Total number of positions opened by direction",
		}, []string{"direction"}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "positions_closed_total",
			Help:      "Total number of positions closed by outcome",
		}, []string{"outcome"}),
		SignalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "signals_generated_total",
			Help:      "Total number of signals generated by direction",
		}, []string{"direction"}),

		// Loop metrics
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "tick_duration_seconds",
			Help:      "Control loop tick duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PriceFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "price_fetch_errors_total",
			Help:      "Total number of failed price fetches",
		}),

		// Database metrics
		JournalErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "journal_errors_total",
			Help:      "Total number of journal write errors by store",
		}, []string{"store"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSessionStarted increments the running sessions gauge.
func RecordSessionStarted() {
	DefaultMetrics.SessionsRunning.Inc()
}

// RecordSessionStopped decrements the running sessions gauge.
func RecordSessionStopped(reason string) {
	DefaultMetrics.SessionsRunning.Dec()
	DefaultMetrics.SessionsFinished.WithLabelValues(reason).Inc()
}

// RecordPositionOpened increments the positions opened counter.
func RecordPositionOpened(direction string) {
	DefaultMetrics.PositionsOpened.WithLabelValues(direction).Inc()
}

// RecordPositionClosed increments the positions closed counter.
func RecordPositionClosed(outcome string) {
	DefaultMetrics.PositionsClosed.WithLabelValues(outcome).Inc()
}

// RecordSignal increments the signals generated counter.
func RecordSignal(direction string) {
	DefaultMetrics.SignalsGenerated.WithLabelValues(direction).Inc()
}

// RecordTick records a control loop tick duration.
func RecordTick(seconds float64) {
	DefaultMetrics.TickDuration.Observe(seconds)
}

// RecordPriceFetchError increments the price fetch error counter.
func RecordPriceFetchError() {
	DefaultMetrics.PriceFetchErrors.Inc()
}

// RecordJournalError records a journal write error.
func RecordJournalError(store string) {
	DefaultMetrics.JournalErrors.WithLabelValues(store).Inc()
}

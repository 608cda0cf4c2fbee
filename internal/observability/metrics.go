// Package observability provides Prometheus metrics and logging setup.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ActionsTotal.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Result labels for DiscoveryRefreshes.
const (
	RefreshFound     = "found"
	RefreshEmpty     = "empty"
	RefreshAmbiguous = "ambiguous"
	RefreshSoftError = "soft_error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Action metrics
	ActionsTotal    *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec

	// Discovery metrics
	DiscoveryRefreshes *prometheus.CounterVec
	PhaseTransitions   *prometheus.CounterVec

	// Sale gauges
	SaleTotalSupply prometheus.Gauge
	SaleSold        prometheus.Gauge
	SaleRemaining   prometheus.Gauge

	// Solana transport metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	WSNotifications *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulReconcile prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_token_sale"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Action metrics
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "actions_total",
			Help:      "Total number of sale actions by kind and outcome",
		}, []string{"kind", "outcome"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected before submission by reason",
		}, []string{"reason"}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "action_duration_seconds",
			Help:      "Time from submission to confirmation in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"kind"}),

		// Discovery metrics
		DiscoveryRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "refreshes_total",
			Help:      "Total number of sale snapshot refreshes by result",
		}, []string{"result"}),
		PhaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "phase_transitions_total",
			Help:      "Total number of session phase transitions by target phase",
		}, []string{"phase"}),

		// Sale gauges
		SaleTotalSupply: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "total_supply_tokens",
			Help:      "Tokens allocated to the sale at the last refresh",
		}),
		SaleSold: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "sold_tokens",
			Help:      "Tokens sold at the last refresh",
		}),
		SaleRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "remaining_tokens",
			Help:      "Tokens still available at the last refresh",
		}),

		// Solana transport metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		WSNotifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Total number of WebSocket notifications received by method",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulReconcile: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reconcile_timestamp",
			Help:      "Unix timestamp of last successful reconcile",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAction counts a finished action.
func (m *Metrics) RecordAction(kind, outcome string) {
	m.ActionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordActionDuration records how long a confirmed submission took.
func (m *Metrics) RecordActionDuration(kind string, d time.Duration) {
	m.ActionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordRejection counts a pre-submission rejection.
func (m *Metrics) RecordRejection(reason string) {
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDiscoveryRefresh counts a snapshot refresh.
func (m *Metrics) RecordDiscoveryRefresh(result string) {
	m.DiscoveryRefreshes.WithLabelValues(result).Inc()
}

// RecordPhase counts a transition into phase.
func (m *Metrics) RecordPhase(phase string) {
	m.PhaseTransitions.WithLabelValues(phase).Inc()
}

// UpdateSale sets the sale gauges.
func (m *Metrics) UpdateSale(total, sold uint64) {
	m.SaleTotalSupply.Set(float64(total))
	m.SaleSold.Set(float64(sold))
	remaining := uint64(0)
	if sold < total {
		remaining = total - sold
	}
	m.SaleRemaining.Set(float64(remaining))
}

// RecordReconcile marks a successful reconcile at t.
func (m *Metrics) RecordReconcile(t time.Time) {
	m.LastSuccessfulReconcile.Set(float64(t.Unix()))
}

// RecordRPCCall records RPC call latency and failure. Its signature matches solana.Observer.
func (m *Metrics) RecordRPCCall(method string, elapsed time.Duration, err error) {
	m.RPCCallLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSNotification counts a WebSocket notification.
func (m *Metrics) RecordWSNotification(method string) {
	m.WSNotifications.WithLabelValues(method).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordDBQuery records database query metrics on DefaultMetrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.RecordDBQuery(database, operation, seconds, err)
}

package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coreerrors "xaumdca/core/errors"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record query
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dca",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total query API requests segmented by route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dca",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total query API errors segmented by route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dca",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for query API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dca",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks ledger operations and balances per funding token.
type LedgerMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	activeOrders *prometheus.GaugeVec
	feeToClaim   *prometheus.GaugeVec
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dca",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by ledger, operation and outcome.",
			}, []string{"ledger", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dca",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"ledger", "operation"}),
			activeOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dca",
				Subsystem: "ledger",
				Name:      "active_orders",
				Help:      "Orders currently in the active index.",
			}, []string{"ledger"}),
			feeToClaim: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dca",
				Subsystem: "ledger",
				Name:      "fee_to_claim",
				Help:      "Accrued, unclaimed fees per settlement token in base units.",
			}, []string{"ledger", "token"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.activeOrders,
			ledgerRegistry.feeToClaim,
		)
	})
	return ledgerRegistry
}

// Observe records one ledger call. Failures are labelled with their error
// kind so dashboards can separate rejections from faults.
func (m *LedgerMetrics) Observe(ledger, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	ledger = labelAsset(ledger)
	outcome := "success"
	if err != nil {
		outcome = coreerrors.KindName(err)
	}
	m.operations.WithLabelValues(ledger, operation, outcome).Inc()
	m.latency.WithLabelValues(ledger, operation).Observe(duration.Seconds())
}

// SetActiveOrders publishes the size of a ledger's active index.
func (m *LedgerMetrics) SetActiveOrders(ledger string, n uint64) {
	if m == nil {
		return
	}
	m.activeOrders.WithLabelValues(labelAsset(ledger)).Set(float64(n))
}

// RecordFee publishes the unclaimed fee balance of token.
func (m *LedgerMetrics) RecordFee(ledger, token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.feeToClaim.WithLabelValues(labelAsset(ledger), labelAsset(token)).Set(bigToFloat(amount))
}

func labelAsset(asset string) string {
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}

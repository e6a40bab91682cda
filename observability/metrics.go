package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// ResolverMetrics bundles collectors tracking swap lifecycle health.
type ResolverMetrics struct {
	ordersCreated  prometheus.Counter
	ordersFilled   prometheus.Counter
	deposits       *prometheus.CounterVec
	swapsCompleted prometheus.Counter
	swapsCancelled *prometheus.CounterVec
	swapDuration   prometheus.Histogram
	openSessions   prometheus.Gauge
	pauseEngaged   prometheus.Gauge
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	resolverMetricsOnce sync.Once
	resolverRegistry    *ResolverMetrics
)

// API returns the lazily-initialised registry used to record HTTP handler
// activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crosslock",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an HTTP request. The status code should be
// the one ultimately written to the response writer.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route.
func (m *apiMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttles.WithLabelValues(route).Inc()
}

// Resolver exposes the metrics registry for the swap resolver.
func Resolver() *ResolverMetrics {
	resolverMetricsOnce.Do(func() {
		resolverRegistry = &ResolverMetrics{
			ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "orders_created_total",
				Help:      "Count of swap orders accepted by the resolver.",
			}),
			ordersFilled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "orders_filled_total",
				Help:      "Count of orders matched with a taker.",
			}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "escrow_deposits_total",
				Help:      "Count of escrow deposits segmented by chain and side.",
			}, []string{"chain", "side"}),
			swapsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "swaps_completed_total",
				Help:      "Count of swaps finished with both legs released.",
			}),
			swapsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "swaps_cancelled_total",
				Help:      "Count of swaps that ended on the timeout path, by terminal state.",
			}, []string{"outcome"}),
			swapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "swap_duration_seconds",
				Help:      "Time from order creation to completion.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			}),
			openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "open_sessions",
				Help:      "Number of swap sessions not yet in a terminal state.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "pause_engaged",
				Help:      "Indicates whether the swap pause guard is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			resolverRegistry.ordersCreated,
			resolverRegistry.ordersFilled,
			resolverRegistry.deposits,
			resolverRegistry.swapsCompleted,
			resolverRegistry.swapsCancelled,
			resolverRegistry.swapDuration,
			resolverRegistry.openSessions,
			resolverRegistry.pauseEngaged,
		)
	})
	return resolverRegistry
}

// RecordOrderCreated increments the accepted-order counter.
func (m *ResolverMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderFilled increments the filled-order counter.
func (m *ResolverMetrics) RecordOrderFilled() {
	if m == nil {
		return
	}
	m.ordersFilled.Inc()
}

// RecordDeposit counts an escrow deposit on the named chain and side.
func (m *ResolverMetrics) RecordDeposit(chain, side string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(labelChain(chain), side).Inc()
}

// RecordCompleted counts a finished swap and its end-to-end duration.
func (m *ResolverMetrics) RecordCompleted(duration time.Duration) {
	if m == nil {
		return
	}
	m.swapsCompleted.Inc()
	if duration > 0 {
		m.swapDuration.Observe(duration.Seconds())
	}
}

// RecordCancelled counts a swap ending on the timeout path. Outcome is the
// terminal session state, "cancelled" or "expired".
func (m *ResolverMetrics) RecordCancelled(outcome string) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unknown"
	}
	m.swapsCancelled.WithLabelValues(outcome).Inc()
}

// SetOpenSessions updates the live session gauge.
func (m *ResolverMetrics) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

// SetPause toggles the pause_engaged gauge.
func (m *ResolverMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func labelChain(chain string) string {
	trimmed := strings.TrimSpace(chain)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

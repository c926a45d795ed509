package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxySelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_selections_total",
			Help: "Total number of proxies handed out by the selector",
		},
		[]string{"provider", "strategy"},
	)

	proxyExhaustionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_exhaustion_total",
			Help: "Total number of selection attempts with no eligible proxy",
		},
	)

	proxyHealthReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_health_reports_total",
			Help: "Total number of proxy health reports",
		},
		[]string{"source", "status"},
	)

	proxyValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_validation_duration_seconds",
			Help:    "Duration of proxy validation probes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"status"},
	)

	proxyLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxy_latency_milliseconds",
			Help:    "Reported proxy latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	proxyDisabledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_disabled_total",
			Help: "Total number of proxies disabled after repeated failures",
		},
		[]string{"provider"},
	)

	activeProxiesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_proxies_count",
			Help: "Current number of active proxies",
		},
	)

	proxyLoadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_provider_load_errors_total",
			Help: "Total number of provider load failures",
		},
		[]string{"provider"},
	)

	healthSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_health_sweeps_total",
			Help: "Total number of completed health sweeps",
		},
	)
)

func RecordSelection(provider, strategy string) {
	proxySelectionsTotal.WithLabelValues(provider, strategy).Inc()
}

func RecordExhaustion() {
	proxyExhaustionTotal.Inc()
}

func RecordHealthReport(source, status string) {
	proxyHealthReportsTotal.WithLabelValues(source, status).Inc()
}

func RecordValidationDuration(status string, seconds float64) {
	proxyValidationDuration.WithLabelValues(status).Observe(seconds)
}

func RecordLatency(ms float64) {
	proxyLatency.Observe(ms)
}

func RecordProxyDisabled(provider string) {
	proxyDisabledTotal.WithLabelValues(provider).Inc()
}

func RecordLoadError(provider string) {
	proxyLoadErrors.WithLabelValues(provider).Inc()
}

func RecordHealthSweep() {
	healthSweepsTotal.Inc()
}

func SetActiveProxies(count float64) {
	activeProxiesCount.Set(count)
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

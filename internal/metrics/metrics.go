// Package metrics exposes Prometheus collectors for the broker and the HTTP
// server that publishes them. Recording functions are no-ops until Init.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshCyclesTotal *prometheus.CounterVec
	refreshDuration    prometheus.Histogram
	checkoutsTotal     *prometheus.CounterVec
	pamRequestsTotal   *prometheus.CounterVec
	cacheEntries       prometheus.Gauge
	lastSuccess        prometheus.Gauge

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	metricsOnce.Do(func() {
		refreshCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btbroker_refresh_cycles_total",
				Help: "Total number of refresh cycles by result",
			},
			[]string{"status"},
		)

		refreshDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "btbroker_refresh_duration_seconds",
				Help:    "Duration of refresh cycles in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 300},
			},
		)

		checkoutsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btbroker_checkouts_total",
				Help: "Total number of managed account checkouts by outcome",
			},
			[]string{"outcome"},
		)

		pamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "btbroker_pam_requests_total",
				Help: "Total number of Password Safe API calls by operation and status code",
			},
			[]string{"op", "code"},
		)

		cacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "btbroker_cache_entries",
				Help: "Number of keys currently held in the secret cache",
			},
		)

		lastSuccess = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "btbroker_last_successful_refresh_timestamp_seconds",
				Help: "Unix time of the last refresh cycle that completed without a panic",
			},
		)

		metricsRegistered.Store(true)
	})
}

// IsRegistered returns whether metrics have been initialized.
func IsRegistered() bool {
	return metricsRegistered.Load()
}

// ObserveCycle records a finished refresh cycle. status is "ok" or "error".
func ObserveCycle(status string, d time.Duration) {
	if !IsRegistered() {
		return
	}
	refreshCyclesTotal.WithLabelValues(status).Inc()
	refreshDuration.Observe(d.Seconds())
	if status == "ok" {
		lastSuccess.SetToCurrentTime()
	}
}

// ObserveCheckout records one checkout outcome.
func ObserveCheckout(outcome string) {
	if !IsRegistered() {
		return
	}
	checkoutsTotal.WithLabelValues(outcome).Inc()
}

// ObservePAMRequest records one API call. code 0 means no response arrived.
func ObservePAMRequest(op string, code int) {
	if !IsRegistered() {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	pamRequestsTotal.WithLabelValues(op, label).Inc()
}

// SetCacheEntries publishes the cache size.
func SetCacheEntries(n int) {
	if !IsRegistered() {
		return
	}
	cacheEntries.Set(float64(n))
}

// RefreshCycles returns the cycle counter for testing.
func RefreshCycles() *prometheus.CounterVec {
	return refreshCyclesTotal
}

// Checkouts returns the checkout counter for testing.
func Checkouts() *prometheus.CounterVec {
	return checkoutsTotal
}

// PAMRequests returns the API call counter for testing.
func PAMRequests() *prometheus.CounterVec {
	return pamRequestsTotal
}

// CacheEntries returns the cache size gauge for testing.
func CacheEntries() prometheus.Gauge {
	return cacheEntries
}

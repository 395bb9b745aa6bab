// Package metrics exposes dedup coordinator activity as Prometheus
// collectors, using a guarded package-level collector pattern: metrics
// are no-ops until Register is called, so embedding callers that don't
// want Prometheus pay nothing.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "claims_total",
			Help:      "Number of first-time claims (NotSeen outcomes).",
		}, []string{"processor"},
	)
	reclaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "reclaims_total",
			Help:      "Number of claims that reclaimed a timed-out record.",
		}, []string{"processor"},
	)
	seen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "seen_total",
			Help:      "Number of TryStart calls that resolved to Seen.",
		}, []string{"processor"},
	)
	completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "completions_total",
			Help:      "Number of successful Complete calls.",
		}, []string{"processor"},
	)
	pollExhaustions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "poll_exhaustions_total",
			Help:      "Number of TryStart calls that gave up waiting on a concurrent claimant.",
		}, []string{"processor"},
	)
	pollWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "poll_wait_seconds",
			Help:      "Observed time spent polling a concurrent claimant before resolving.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"processor"},
	)
	sweptRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onceguard",
			Subsystem: "dedup",
			Name:      "swept_records_total",
			Help:      "Number of expired completed records reclaimed by the sweeper.",
		}, []string{"processor"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{claims, reclaims, seen, completions, pollExhaustions, pollWaitSeconds, sweptRecords}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncClaim(processor string) {
	if regOK.Load() {
		claims.WithLabelValues(processor).Inc()
	}
}

func IncReclaim(processor string) {
	if regOK.Load() {
		reclaims.WithLabelValues(processor).Inc()
	}
}

func IncSeen(processor string) {
	if regOK.Load() {
		seen.WithLabelValues(processor).Inc()
	}
}

func IncCompletion(processor string) {
	if regOK.Load() {
		completions.WithLabelValues(processor).Inc()
	}
}

func IncPollExhaustion(processor string) {
	if regOK.Load() {
		pollExhaustions.WithLabelValues(processor).Inc()
	}
}

func ObservePollWait(processor string, seconds float64) {
	if regOK.Load() {
		pollWaitSeconds.WithLabelValues(processor).Observe(seconds)
	}
}

func IncSwept(processor string, n int64) {
	if regOK.Load() && n > 0 {
		sweptRecords.WithLabelValues(processor).Add(float64(n))
	}
}

// Package metrics holds the counters that make degraded results observable
// even when they are not surfaced to the caller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pvledger"

var (
	// UpstreamAttempts counts every signed telemetry request by operation,
	// signing variant and outcome.
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Signed telemetry requests by operation, variant and outcome",
		},
		[]string{"operation", "variant", "outcome"},
	)

	// DegradedDays counts days that were zero-filled or otherwise degraded.
	DegradedDays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_days_total",
			Help:      "Days that contributed a degraded result",
		},
		[]string{"reason"},
	)

	// PriceFallbacks counts which source served each monthly price.
	PriceFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fallback_total",
			Help:      "Monthly price lookups by the source that answered",
		},
		[]string{"source"},
	)

	// CacheRequests counts cache lookups by cache name and hit or miss.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// UnitCorrections counts series that were rescaled because their values
	// were implausible for the declared unit.
	UnitCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_corrections_total",
			Help:      "Series rescaled by the unit mismatch heuristic",
		},
		[]string{"variable"},
	)
)

// Package metrics exposes Prometheus collectors for the schedule pipeline.
//
// Label sets are small closed enums (result, origin, kind, outcome) so the
// series count stays bounded on the device. All collectors are safe for
// concurrent use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RemoteFetches counts outbound schedule requests by result
	// (ok|unavailable|malformed).
	RemoteFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muezzin_remote_fetches_total",
			Help: "Outbound schedule requests by result.",
		},
		[]string{"result"},
	)

	// Resolutions counts resolve calls by origin, "none" when no data.
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muezzin_resolutions_total",
			Help: "Schedule resolutions by origin.",
		},
		[]string{"origin"},
	)

	// AlertsFired counts alert transitions by kind.
	AlertsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muezzin_alerts_fired_total",
			Help: "Alert transitions by kind.",
		},
		[]string{"kind"},
	)

	// LookaheadDates counts dates visited by look-ahead runs by outcome
	// (cached|skipped|failed).
	LookaheadDates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muezzin_lookahead_dates_total",
			Help: "Dates visited by look-ahead runs by outcome.",
		},
		[]string{"outcome"},
	)

	// ClockSyncs counts network time sync attempts by result (ok|failed|skipped).
	ClockSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muezzin_clock_syncs_total",
			Help: "Network time sync attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(RemoteFetches, Resolutions, AlertsFired, LookaheadDates, ClockSyncs)
}

// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BackendQueries counts backend GraphQL queries by operation and outcome
	// ("ok", "client_error", "unavailable").
	BackendQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashfin_backend_queries_total",
			Help: "Total number of backend GraphQL queries",
		},
		[]string{"operation", "outcome"},
	)

	// BackendQueryDuration measures backend query latency including retries.
	BackendQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stashfin_backend_query_duration_seconds",
			Help:    "Duration of backend GraphQL queries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// StreamEvents counts playback classification outcomes.
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashfin_stream_events_total",
			Help: "Stream segment classifications by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveStreams is the number of streams currently shown as playing.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stashfin_active_streams",
			Help: "Number of active streams",
		},
	)

	// AuthAttempts counts token and login checks by outcome.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashfin_auth_attempts_total",
			Help: "Authentication attempts by outcome",
		},
		[]string{"outcome"},
	)

	// BannedConnections counts connections dropped because of a ban.
	BannedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stashfin_banned_connections_total",
			Help: "Connections silently dropped from banned addresses",
		},
	)

	// Bans is the current size of the ban set.
	Bans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stashfin_banned_addresses",
			Help: "Number of banned addresses",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics defines the Prometheus collectors shared by the gateway.
// Collectors are registered at init time and exposed through promhttp on the
// health listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenExchanges counts On-Behalf-Of exchange attempts by target
	// audience (graph, search) and outcome (success, provider_error,
	// transport_error).
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obo_token_exchanges_total",
			Help: "On-Behalf-Of token exchange attempts",
		},
		[]string{"target", "outcome"},
	)

	// ExchangeDuration observes wall time of token exchanges by target.
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obo_token_exchange_duration_seconds",
			Help:    "On-Behalf-Of token exchange duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// DownstreamRequests counts calls to downstream APIs by target
	// (graph_me, graph_member_of, search) and HTTP status class.
	DownstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obo_downstream_requests_total",
			Help: "Downstream API requests",
		},
		[]string{"target", "status"},
	)

	// FilterDecisions counts security filter outcomes (restricted,
	// allow_all, deny_all).
	FilterDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obo_filter_decisions_total",
			Help: "Security filter construction outcomes",
		},
		[]string{"outcome"},
	)
)

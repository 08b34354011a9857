// Package metrics holds the Prometheus collectors shared by the GraphQL handler and the event hub.
// They are registered with the default registry so the /metrics route exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts executed GraphQL operations by type (query, mutation, subscription) and outcome
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_graphql_operations_total",
			Help: "Total number of GraphQL operations executed",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks how long queries and mutations take to resolve
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_graphql_operation_duration_seconds",
			Help:    "Time taken to resolve a GraphQL query or mutation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// WSConnections is the number of open websocket connections
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_ws_connections",
			Help: "Number of open GraphQL websocket connections",
		},
	)

	// Subscribers is the number of live hub subscriptions per topic
	Subscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "library_pubsub_subscribers",
			Help: "Number of live subscribers per topic",
		},
		[]string{"topic"},
	)

	// Published counts events published to the hub per topic
	Published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_pubsub_published_total",
			Help: "Total number of events published per topic",
		},
		[]string{"topic"},
	)
)

// Status returns the label value used for the outcome of an operation
func Status(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

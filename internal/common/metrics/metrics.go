// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "route"},
	)

	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of dataset store operations by backend, operation and result",
		},
		[]string{"backend", "operation", "result"},
	)

	StoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_conflicts_total",
			Help: "Version conflicts seen by the store, split by whether the retry recovered",
		},
		[]string{"backend", "outcome"},
	)

	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Application lifecycle transitions committed",
		},
		[]string{"action"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Decision notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)

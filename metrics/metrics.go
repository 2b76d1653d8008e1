// Package metrics provides Prometheus instrumentation for the TA bridge: the
// serialized channel, the failure stores and the HTTP front end.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ruteri/tee-ta-bridge/common"
)

const (
	// Namespace is the Prometheus namespace for all bridge metrics
	Namespace = common.PackageName

	LabelOperation = "operation"
	LabelBackend   = "backend"
	LabelStatus    = "status"
	LabelService   = "service"

	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
	StatusTooLarge = "too_large"
	StatusFault    = "fault"

	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
	OpList   = "list"
)

var (
	// ChannelRequestsTotal counts Execute calls by outcome.
	ChannelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "channel",
			Name:      "requests_total",
			Help:      "Total number of requests sent through the serialized channel by outcome",
		},
		[]string{LabelStatus},
	)

	// ChannelWaitDuration is the time a caller waits to acquire the channel.
	ChannelWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "channel",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for exclusive access to the channel",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// ChannelProcessDuration is the time between handing a request to the TA and receiving its response.
	ChannelProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "channel",
			Name:      "process_duration_seconds",
			Help:      "Time the TA spent on a request",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// ChannelWaiting tracks callers blocked on the channel, including the one being served.
	ChannelWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "channel",
			Name:      "callers",
			Help:      "Number of callers currently inside Execute",
		},
	)

	// StoreOperationsTotal counts failure store operations by backend and outcome.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "failure_store",
			Name:      "operations_total",
			Help:      "Total number of failure store operations by type, backend, and status",
		},
		[]string{LabelOperation, LabelBackend, LabelStatus},
	)

	// StoreOperationDuration tracks failure store latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "failure_store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of failure store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelOperation, LabelBackend},
	)

	// ServiceRequestsTotal counts front-end calls per registered service name.
	ServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "service_requests_total",
			Help:      "Total number of HTTP requests per registered TA service and status",
		},
		[]string{LabelService, LabelStatus},
	)
)

// RecordChannelRequest records the outcome of one Execute call.
func RecordChannelRequest(status string) {
	ChannelRequestsTotal.WithLabelValues(status).Inc()
}

// RecordStoreOperation records one failure store operation with its duration in seconds.
func RecordStoreOperation(operation, backend, status string, duration float64) {
	StoreOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	StoreOperationDuration.WithLabelValues(operation, backend).Observe(duration)
}

// RecordServiceRequest records one HTTP call to a named TA service.
func RecordServiceRequest(service, status string) {
	ServiceRequestsTotal.WithLabelValues(service, status).Inc()
}

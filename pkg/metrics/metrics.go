// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ActivitiesTotal tracks inbound chat activities by type.
	ActivitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_activities_total",
			Help: "Inbound chat activities by type",
		},
		[]string{"type"},
	)

	// GenieCallDuration tracks outbound Genie API call latency.
	GenieCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genie_call_duration_seconds",
			Help:    "Genie API call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"op", "status"},
	)

	// GeniePollAttempts tracks how many polls an exchange needed.
	GeniePollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genie_poll_attempts",
			Help:    "Number of status polls per exchange",
			Buckets: []float64{1, 2, 3, 5, 8, 12, 20, 30},
		},
		[]string{"outcome"},
	)

	// ExchangesTotal tracks finished exchanges by outcome.
	ExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genie_exchanges_total",
			Help: "Finished Genie exchanges by outcome",
		},
		[]string{"outcome"},
	)

	// UnknownStatusTotal tracks unrecognized status strings seen while polling.
	UnknownStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genie_unknown_status_total",
			Help: "Unrecognized message statuses returned by Genie",
		},
		[]string{"status"},
	)

	// FeedbackTotal tracks feedback submissions.
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genie_feedback_total",
			Help: "Feedback submissions by rating and result",
		},
		[]string{"rating", "result"},
	)

	// BindingsTotal tracks binding store operations.
	BindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_bindings_total",
			Help: "Conversation binding lookups and writes",
		},
		[]string{"op", "result"},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGenieCall records metrics for one outbound Genie call.
func RecordGenieCall(op, status string, duration float64) {
	GenieCallDuration.WithLabelValues(op, status).Observe(duration)
}

// RecordExchange records the outcome of a polled exchange.
func RecordExchange(outcome string, attempts int) {
	ExchangesTotal.WithLabelValues(outcome).Inc()
	GeniePollAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

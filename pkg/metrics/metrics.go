package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fulfillment"

var (
	// HTTPRequests counts HTTP requests by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})

	// HTTPLatencyMS observes HTTP latency by route pattern.
	HTTPLatencyMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	// PublishedMessages counts outgoing messages by destination and outcome.
	PublishedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "published_messages_total",
		Help:      "Messages published to the broker, by destination and outcome.",
	}, []string{"destination", "outcome"})

	// ConsumedMessages counts incoming messages by queue and outcome.
	ConsumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumed_messages_total",
		Help:      "Messages consumed from the broker, by queue and outcome.",
	}, []string{"queue", "outcome"})
)

// Publish outcomes.
const (
	OutcomePublished = "published"
	OutcomeOutboxed  = "outboxed"
	OutcomeFailed    = "failed"
)

// Consume outcomes.
const (
	OutcomeAcked       = "acked"
	OutcomeDeadLetter  = "dead_lettered"
	OutcomeInboxed     = "inboxed"
	OutcomeUnsupported = "unsupported"
)

func Handler() http.Handler {
	return promhttp.Handler()
}

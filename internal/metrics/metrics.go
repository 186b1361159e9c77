// Package metrics exposes the Broker's Prometheus instrumentation,
// grounded on cuemby-warren/pkg/metrics/metrics.go: package-level
// vector/gauge/histogram vars registered in init(), a Timer helper, and
// a Handler() for wiring into an HTTP mux.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ServicesConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uspbroker_services_connected",
			Help: "Number of USP Services currently registered with the Broker",
		},
	)

	ServiceConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uspbroker_service_connects_total",
			Help: "Total Service connect events by outcome",
		},
		[]string{"outcome"},
	)

	ServiceDisconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uspbroker_service_disconnects_total",
			Help: "Total Service disconnect events",
		},
	)

	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uspbroker_messages_received_total",
			Help: "Total inbound messages by msg_type",
		},
		[]string{"msg_type"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uspbroker_messages_sent_total",
			Help: "Total outbound messages by msg_type",
		},
		[]string{"msg_type"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uspbroker_request_duration_seconds",
			Help:    "Time from the Broker forwarding a request to a Service to its response or fault",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"msg_type"},
	)

	RequestTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uspbroker_request_timeouts_total",
			Help: "Total requests that hit ResponseTimeout waiting on a Service",
		},
		[]string{"msg_type"},
	)

	PassthruTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uspbroker_passthru_total",
			Help: "Total requests satisfied by the PassThru fast path, by outcome",
		},
		[]string{"outcome"},
	)

	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uspbroker_subscriptions_active",
			Help: "Number of bridged subscription rows currently tracked",
		},
	)

	RegisterFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uspbroker_register_failures_total",
			Help: "Total Register paths that failed, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		ServicesConnected,
		ServiceConnectsTotal,
		ServiceDisconnectsTotal,
		MessagesReceivedTotal,
		MessagesSentTotal,
		RequestDuration,
		RequestTimeoutsTotal,
		PassthruTotal,
		SubscriptionsActive,
		RegisterFailuresTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation and reports it to a histogram on Observe.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(time.Since(t.start).Seconds())
}

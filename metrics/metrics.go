// Package metrics holds the gateway's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sessiongw"

// Datagram outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeSendError = "send_error"
	OutcomeInitError = "init_error"
	OutcomeRejected  = "rejected"
)

type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	datagrams       *prometheus.CounterVec
	frameBytes      prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Inbound create-session requests by transport and response status.",
			},
			[]string{"transport", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Inbound create-session handling time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"transport"},
		),
		datagrams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datagrams_total",
				Help:      "Outbound datagram attempts by outcome.",
			},
			[]string{"outcome"},
		),
		frameBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_bytes",
				Help:      "Size of sent frames in bytes.",
				Buckets:   prometheus.ExponentialBuckets(15, 2, 10),
			},
		),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.datagrams, m.frameBytes)
	return m
}

// ObserveRequest records one inbound request.
func (m *Metrics) ObserveRequest(transport, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, status).Inc()
	m.requestDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// ObserveDatagram records one outbound attempt; size is ignored unless outcome is OutcomeSent.
func (m *Metrics) ObserveDatagram(outcome string, size int) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSent {
		m.frameBytes.Observe(float64(size))
	}
}

// Package metrics provides observability for the FSP request loop.
//
// Sessions accept a nil Metrics; nil disables collection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics receives events from sessions and operations.
type Metrics interface {
	// ObserveRequest records a finished request. outcome is "ok", "error"
	// (ERR reply) or "timeout".
	ObserveRequest(command string, duration time.Duration, outcome string)

	// RecordRetransmit counts a resend after an expired wait window.
	RecordRetransmit(command string)

	// RecordDropped counts a received datagram that was ignored. reason is
	// "malformed" or "mismatch".
	RecordDropped(reason string)

	// RecordBytes counts file payload bytes. direction is "read" or "write".
	RecordBytes(direction string, bytes int)
}

type promMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retransmits     *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	bytes           *prometheus.CounterVec
}

// NewPrometheus registers the FSP client collectors with reg.
func NewPrometheus(reg prometheus.Registerer) Metrics {
	return &promMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsp_client_requests_total",
				Help: "Total number of FSP requests by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fsp_client_request_duration_milliseconds",
				Help: "Duration of FSP requests including retransmissions in milliseconds",
				Buckets: []float64{
					1,      // loopback
					10,     // LAN
					100,    // internet
					1000,   // first resend
					5000,   // several resends
					30000,  // lossy link
					300000, // default timeout
				},
			},
			[]string{"command"},
		),
		retransmits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsp_client_retransmits_total",
				Help: "Total number of resent FSP requests by command",
			},
			[]string{"command"},
		),
		dropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsp_client_dropped_datagrams_total",
				Help: "Total number of ignored datagrams by reason",
			},
			[]string{"reason"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsp_client_bytes_total",
				Help: "Total number of file bytes transferred by direction",
			},
			[]string{"direction"},
		),
	}
}

func (m *promMetrics) ObserveRequest(command string, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, outcome).Inc()
	m.requestDuration.WithLabelValues(command).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *promMetrics) RecordRetransmit(command string) {
	if m == nil {
		return
	}
	m.retransmits.WithLabelValues(command).Inc()
}

func (m *promMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *promMetrics) RecordBytes(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(bytes))
}

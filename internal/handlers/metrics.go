package handlers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the chat relay.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	ChunksTotal     prometheus.Counter
	StreamsInFlight prometheus.Gauge
	StreamDuration  prometheus.Histogram
}

// Relay request outcomes, used as the status label of RequestsTotal.
const (
	statusOK            = "ok"
	statusInvalid       = "invalid"
	statusUpstreamError = "upstream_error"
	statusAborted       = "aborted"
)

// NewMetrics creates the relay metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) Metrics {
	factory := promauto.With(reg)

	return Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamchat_relay_requests_total",
				Help: "Total number of chat relay requests by outcome",
			},
			[]string{"status"},
		),
		ChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "streamchat_relay_chunks_total",
				Help: "Total number of text chunks forwarded to clients",
			},
		),
		StreamsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "streamchat_relay_streams_in_flight",
				Help: "Number of upstream streams currently being relayed",
			},
		),
		StreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "streamchat_relay_stream_duration_seconds",
				Help:    "Duration of relayed streams in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
	}
}

func (m Metrics) recordRequest(status string) {
	m.RequestsTotal.WithLabelValues(status).Inc()
}

func (m Metrics) recordStream(start time.Time) {
	m.StreamDuration.Observe(time.Since(start).Seconds())
}

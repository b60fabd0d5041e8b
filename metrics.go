package livequest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus instruments on a private registry
// so multiple App instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotRequests prometheus.Counter
	StreamClients    prometheus.Gauge
	TrackEvents      *prometheus.CounterVec
	TrackRejected    prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SnapshotRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livequest_snapshot_requests_total",
		Help: "Feed snapshot requests served.",
	})
	m.StreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livequest_stream_clients",
		Help: "Currently connected change-stream clients.",
	})
	m.TrackEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livequest_track_events_total",
		Help: "Accepted viewer telemetry events.",
	}, []string{"event"})
	m.TrackRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livequest_track_rejected_total",
		Help: "Telemetry events dropped by the rate limiter.",
	})

	m.registry.MustRegister(
		m.SnapshotRequests,
		m.StreamClients,
		m.TrackEvents,
		m.TrackRejected,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

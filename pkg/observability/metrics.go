package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts framed channel and transport activity. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	framesRead      prometheus.Counter
	framesWritten   prometheus.Counter
	bytesRead       prometheus.Counter
	bytesWritten    prometheus.Counter
	channelErrors   *prometheus.CounterVec
	connsAccepted   *prometheus.CounterVec
	streamsAccepted *prometheus.CounterVec
	activeConns     prometheus.Gauge
}

// NewMetrics registers the netz collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		framesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "channel", Name: "frames_read_total",
			Help: "Frames received and handed to the codec.",
		}),
		framesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "channel", Name: "frames_written_total",
			Help: "Frames accepted by the transport.",
		}),
		bytesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "channel", Name: "payload_bytes_read_total",
			Help: "Payload bytes received, excluding length prefixes.",
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "channel", Name: "payload_bytes_written_total",
			Help: "Payload bytes written, excluding length prefixes.",
		}),
		channelErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "channel", Name: "errors_total",
			Help: "Channel errors by kind.",
		}, []string{"kind"}),
		connsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "transport", Name: "connections_accepted_total",
			Help: "Inbound connections by transport kind.",
		}, []string{"transport"}),
		streamsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netz", Subsystem: "transport", Name: "streams_accepted_total",
			Help: "Inbound streams by transport kind.",
		}, []string{"transport"}),
		activeConns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "netz", Subsystem: "transport", Name: "active_connections",
			Help: "Connections currently tracked by the node.",
		}),
	}
}

func (m *Metrics) FrameRead(payload int) {
	if m == nil {
		return
	}
	m.framesRead.Inc()
	m.bytesRead.Add(float64(payload))
}

func (m *Metrics) FrameWritten(payload int) {
	if m == nil {
		return
	}
	m.framesWritten.Inc()
	m.bytesWritten.Add(float64(payload))
}

func (m *Metrics) ChannelError(kind string) {
	if m == nil {
		return
	}
	m.channelErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ConnAccepted(transport string) {
	if m == nil {
		return
	}
	m.connsAccepted.WithLabelValues(transport).Inc()
}

func (m *Metrics) StreamAccepted(transport string) {
	if m == nil {
		return
	}
	m.streamsAccepted.WithLabelValues(transport).Inc()
}

// ConnOpened and ConnClosed track the active connection gauge.
func (m *Metrics) ConnOpened() {
	if m != nil {
		m.activeConns.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.activeConns.Dec()
	}
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

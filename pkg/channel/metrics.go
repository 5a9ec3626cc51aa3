package channel

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Drop reasons reported by Metrics.
const (
	DropUnknownTransport = "unknown_transport"
	DropMalformed        = "malformed"
	DropClosed           = "closed"
	DropLimit            = "transport_limit"
)

// Metrics holds the Prometheus collectors of a channel. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	transports       prometheus.Gauge
	objects          *prometheus.GaugeVec
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	handleDuration   *prometheus.HistogramVec
}

// NewMetrics creates the channel collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webchannel",
			Name:      "transports",
			Help:      "Connected transports",
		}),
		objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "webchannel",
			Name:      "published_objects",
			Help:      "Published objects by kind (registered or wrapped)",
		}, []string{"kind"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webchannel",
			Name:      "messages_received_total",
			Help:      "Messages received from clients by type",
		}, []string{"type"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webchannel",
			Name:      "messages_sent_total",
			Help:      "Messages sent to clients by type",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webchannel",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped before dispatch by reason",
		}, []string{"reason"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webchannel",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one client message on the loop",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.transports, m.objects, m.messagesReceived, m.messagesSent, m.messagesDropped, m.handleDuration)
	}
	return m
}

func (m *Metrics) setTransports(n int) {
	if m != nil {
		m.transports.Set(float64(n))
	}
}

func (m *Metrics) setObjects(registered, wrapped int) {
	if m != nil {
		m.objects.WithLabelValues("registered").Set(float64(registered))
		m.objects.WithLabelValues("wrapped").Set(float64(wrapped))
	}
}

func (m *Metrics) received(t wire.MessageType) {
	if m != nil {
		m.messagesReceived.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) sent(t wire.MessageType) {
	if m != nil {
		m.messagesSent.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.messagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeHandle(t wire.MessageType, seconds float64) {
	if m != nil {
		m.handleDuration.WithLabelValues(t.String()).Observe(seconds)
	}
}

// Package metrics exposes the relay's Prometheus instrumentation.
//
// Every counter lives on a private registry so tests can construct
// isolated instances without global registration conflicts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	messages     *prometheus.CounterVec
	relayed      *prometheus.CounterVec
	errors       *prometheus.CounterVec
	droppedSends prometheus.Counter
	evictions    prometheus.Counter

	connections prometheus.Gauge
	rooms       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_messages_total",
			Help: "Inbound signaling messages by wire type.",
		}, []string{"type"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_relayed_total",
			Help: "Messages relayed to peers, by routing kind (direct or fanout).",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_errors_total",
			Help: "Error responses sent to clients, by reason.",
		}, []string{"reason"}),
		droppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_relay_dropped_sends_total",
			Help: "Outbound messages dropped because the recipient was closed or backpressured.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_relay_evictions_total",
			Help: "Connections evicted by the liveness monitor.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_relay_connections",
			Help: "Currently registered signaling connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_relay_rooms",
			Help: "Currently live rooms.",
		}),
	}
	m.reg.MustRegister(m.messages, m.relayed, m.errors, m.droppedSends, m.evictions, m.connections, m.rooms)
	return m
}

// Handler serves the exposition format for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Message(wireType string) { m.messages.WithLabelValues(wireType).Inc() }
func (m *Metrics) Relayed(kind string)     { m.relayed.WithLabelValues(kind).Inc() }
func (m *Metrics) Error(reason string)     { m.errors.WithLabelValues(reason).Inc() }
func (m *Metrics) DroppedSend()            { m.droppedSends.Inc() }
func (m *Metrics) Eviction()               { m.evictions.Inc() }
func (m *Metrics) ConnectionOpened()       { m.connections.Inc() }
func (m *Metrics) ConnectionClosed()       { m.connections.Dec() }
func (m *Metrics) SetRooms(n int)          { m.rooms.Set(float64(n)) }

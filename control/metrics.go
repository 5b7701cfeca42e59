// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for connection lifecycle and frame traffic.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsreactor"

// Metrics groups the collectors updated by the dispatcher and connections.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Accepted    prometheus.Counter
	Rejected    *prometheus.CounterVec
	Closed      *prometheus.CounterVec
	Active      prometheus.Gauge
	FramesIn    *prometheus.CounterVec
	FramesOut   *prometheus.CounterVec
	BytesIn     prometheus.Counter
	BytesOut    prometheus.Counter
	Handshakes  *prometheus.CounterVec
	StaleEvents prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Sockets accepted from the listener.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Sockets closed at accept time.",
		}, []string{"reason"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections torn down, by error class.",
		}, []string{"reason"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently registered with the dispatcher.",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from clients.",
		}, []string{"opcode"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames queued for clients.",
		}, []string{"opcode"}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Raw bytes read from client sockets.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Raw bytes written to client sockets.",
		}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Opening handshakes, by result.",
		}, []string{"result"}),
		StaleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_total",
			Help:      "Readiness events whose token no longer resolves.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Accepted, m.Rejected, m.Closed, m.Active,
			m.FramesIn, m.FramesOut, m.BytesIn, m.BytesOut,
			m.Handshakes, m.StaleEvents,
		)
	}
	return m
}

func (m *Metrics) ConnAccepted() {
	if m == nil {
		return
	}
	m.Accepted.Inc()
	m.Active.Inc()
}

func (m *Metrics) ConnRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConnClosed(reason string) {
	if m == nil {
		return
	}
	m.Closed.WithLabelValues(reason).Inc()
	m.Active.Dec()
}

func (m *Metrics) FrameIn(opcode string) {
	if m == nil {
		return
	}
	m.FramesIn.WithLabelValues(opcode).Inc()
}

func (m *Metrics) FrameOut(opcode string) {
	if m == nil {
		return
	}
	m.FramesOut.WithLabelValues(opcode).Inc()
}

func (m *Metrics) Read(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesIn.Add(float64(n))
}

func (m *Metrics) Wrote(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesOut.Add(float64(n))
}

func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) StaleEvent() {
	if m == nil {
		return
	}
	m.StaleEvents.Inc()
}

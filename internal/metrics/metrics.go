// Package metrics holds the Prometheus collectors of a client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of collectors one client updates.
type Metrics struct {
	FramesIn          *prometheus.CounterVec
	FramesOut         *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	RequestTimeouts   prometheus.Counter
	PendingRequests   prometheus.Gauge
	Reconnects        prometheus.Counter
	HeartbeatFailures prometheus.Counter
	LoginOutcomes     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goicq_frames_in_total",
			Help: "Frames received, by command",
		}, []string{"command"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goicq_frames_out_total",
			Help: "Frames sent, by command",
		}, []string{"command"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goicq_frames_dropped_total",
			Help: "Frames that failed to decode or had no consumer",
		}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goicq_request_timeouts_total",
			Help: "Requests that got no response in time",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goicq_pending_requests",
			Help: "Requests waiting for a response",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goicq_reconnects_total",
			Help: "Reconnect attempts after a lost connection",
		}),
		HeartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goicq_heartbeat_failures_total",
			Help: "Heartbeats that got no response",
		}),
		LoginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goicq_login_outcomes_total",
			Help: "Login state machine results, by stage",
		}, []string{"stage"}),
	}
	reg.MustRegister(
		m.FramesIn,
		m.FramesOut,
		m.FramesDropped,
		m.RequestTimeouts,
		m.PendingRequests,
		m.Reconnects,
		m.HeartbeatFailures,
		m.LoginOutcomes,
	)
	return m
}

// Discard returns collectors registered with a private registry, for
// clients that do not export metrics.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

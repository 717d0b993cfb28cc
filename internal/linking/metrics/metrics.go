package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes session-manager instrumentation.
type Metrics struct {
	SessionsByState    *prometheus.GaugeVec
	PairingStarted     prometheus.Counter
	PairingCompleted   prometheus.Counter
	PairingTimedOut    prometheus.Counter
	ReconnectAttempts  prometheus.Counter
	AuthRejections     prometheus.Counter
	MessagesInbound    prometheus.Counter
	MessagesOutbound   prometheus.Counter
	SendFailures       *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
	SupervisorsEvicted prometheus.Counter
}

// New registers and returns the session-manager metrics.
func New() *Metrics {
	return &Metrics{
		SessionsByState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linkhub_sessions",
			Help: "Number of sessions currently in each state",
		}, []string{"state"}),
		PairingStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_pairing_started_total",
			Help: "Total pairing handshakes started",
		}),
		PairingCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_pairing_completed_total",
			Help: "Total pairings completed by a device scan",
		}),
		PairingTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_pairing_timed_out_total",
			Help: "Total pairings abandoned because no device scanned in time",
		}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_reconnect_attempts_total",
			Help: "Total reconnection attempts after transient transport failures",
		}),
		AuthRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_auth_rejections_total",
			Help: "Total resumptions rejected by the gateway (credential purged)",
		}),
		MessagesInbound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_messages_inbound_total",
			Help: "Total inbound messages relayed to the pipeline",
		}),
		MessagesOutbound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_messages_outbound_total",
			Help: "Total outbound messages delivered through a session",
		}),
		SendFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linkhub_send_failures_total",
			Help: "Total outbound send failures by reason",
		}, []string{"reason"}),
		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkhub_command_duration_seconds",
			Help:    "Duration of session commands",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"command"}),
		SupervisorsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkhub_supervisors_evicted_total",
			Help: "Total idle supervisors evicted by the reaper",
		}),
	}
}

// ObserveCommand records one command's duration.
func (m *Metrics) ObserveCommand(command string, start time.Time) {
	m.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// SetSessionState moves a session between state gauges.
func (m *Metrics) SetSessionState(prev, next string) {
	if prev != "" {
		m.SessionsByState.WithLabelValues(prev).Dec()
	}
	if next != "" {
		m.SessionsByState.WithLabelValues(next).Inc()
	}
}

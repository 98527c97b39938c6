// Package metrics groups the Prometheus instruments for the launcher and the worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chriscow/interview-agent/pkg/launch"
)

// Metrics groups all Prometheus instruments used by the service. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	TokensIssued     *prometheus.CounterVec
	RoomsGenerated   prometheus.Counter
	Launches         *prometheus.CounterVec
	ActiveJobs       prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	ReplyLatencyMS   prometheus.Histogram
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Room access tokens by outcome.",
		}, []string{"outcome"}),
		RoomsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_generated_total",
			Help:      "Room names generated for new sessions.",
		}),
		Launches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Agent worker launches by final status.",
		}, []string{"status"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Agent worker jobs currently pending or running.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Interview sessions connected to a room.",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Session state machine transitions.",
		}, []string{"from", "to"}),
		ReplyLatencyMS: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_ms",
			Help:      "End of candidate speech to first agent audio in milliseconds.",
			Buckets:   []float64{300, 500, 700, 1000, 1500, 2000, 3000, 5000, 8000},
		}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveJob is a launch.Observer. Pending and running updates move the active gauge;
// terminal updates count the launch outcome.
func (m *Metrics) ObserveJob(job launch.Job) {
	switch job.Status {
	case launch.StatusPending:
		m.ActiveJobs.Inc()
	case launch.StatusCompleted, launch.StatusFailed:
		m.ActiveJobs.Dec()
		m.Launches.WithLabelValues(string(job.Status)).Inc()
	}
}

// The methods below satisfy worker.Metrics.

func (m *Metrics) SessionStarted() { m.ActiveSessions.Inc() }
func (m *Metrics) SessionEnded()   { m.ActiveSessions.Dec() }

func (m *Metrics) Transition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ReplyLatency(d time.Duration) {
	m.ReplyLatencyMS.Observe(float64(d.Milliseconds()))
}

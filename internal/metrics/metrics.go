// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/resilience"
)

const namespace = "voicerelay"

// Turn outcomes
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Metrics contains all Prometheus metrics for the relay
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter
	EventsDropped  prometheus.Counter
	RateLimited    *prometheus.CounterVec

	// Turn metrics
	Turns        *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// Gate metrics
	GateDecisions *prometheus.CounterVec
	GateZCR       prometheus.Histogram

	// Upstream metrics
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	reg prometheus.Registerer
}

// New creates all collectors and registers them with reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of connected sessions",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions started",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Queued events discarded because the client disconnected",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound events rejected by the per-connection rate limit",
		}, []string{"event"}),

		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by kind and outcome",
		}, []string{"kind", "outcome"}),
		TurnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a turn from dequeue to emitted reply",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind"}),

		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Voice activity gate verdicts",
		}, []string{"verdict"}),
		GateZCR: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_zero_crossing_rate",
			Help:      "Mean zero-crossing rate of evaluated clips",
			Buckets:   prometheus.LinearBuckets(0, 0.025, 21), // 0.0 to 0.5
		}),

		UpstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Upstream API calls by service and result code",
		}, []string{"service", "code"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of upstream API calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"service"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		}, []string{"service"}),

		reg: reg,
	}
}

// RecordSessionStarted marks a new connection.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnded marks a closed connection and the events it left queued.
func (m *Metrics) RecordSessionEnded(dropped int) {
	m.ActiveSessions.Dec()
	if dropped > 0 {
		m.EventsDropped.Add(float64(dropped))
	}
}

// RecordRateLimited counts a rejected inbound event.
func (m *Metrics) RecordRateLimited(event string) {
	m.RateLimited.WithLabelValues(event).Inc()
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(kind, outcome string, d time.Duration) {
	m.Turns.WithLabelValues(kind, outcome).Inc()
	m.TurnDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordGate records a gate verdict.
func (m *Metrics) RecordGate(voice bool, zcr float64) {
	verdict := "silence"
	if voice {
		verdict = "voice"
	}
	m.GateDecisions.WithLabelValues(verdict).Inc()
	m.GateZCR.Observe(zcr)
}

// RecordUpstream records one upstream call; err's code becomes the label.
func (m *Metrics) RecordUpstream(service string, err error, d time.Duration) {
	code := "OK"
	if err != nil {
		code = string(errors.CodeOf(err))
	}
	m.UpstreamCalls.WithLabelValues(service, code).Inc()
	m.UpstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

// BreakerHook mirrors breaker transitions into the breaker_state gauge.
func (m *Metrics) BreakerHook() resilience.Hook {
	return func(name string, _, to resilience.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
	}
}

// RegisterSpool exposes the number of staged clips through fn.
func (m *Metrics) RegisterSpool(fn func() int64) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "spool_files",
		Help:      "Audio clips currently staged on disk",
	}, func() float64 { return float64(fn()) })
}

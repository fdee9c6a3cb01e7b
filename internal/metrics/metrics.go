// Package metrics exposes Prometheus collectors for the relay pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediarelay"

// Metrics groups the pipeline collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	requests      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	attachments   *prometheus.CounterVec
	ingress       *prometheus.CounterVec
}

// New registers the collectors with reg. Use a fresh registry per test.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Pipeline runs by operation and outcome.",
		}, []string{"operation", "outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_state_transitions_total",
			Help:      "State machine transitions by target state.",
		}, []string{"state"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Classifier failures replaced by a fallback phrase.",
		}, []string{"kind"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chatwoot_deliveries_total",
			Help:      "Conversation deliveries by mode and result.",
		}, []string{"mode", "result"}),
		attachments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chatwoot_attachments_total",
			Help:      "Attachment uploads by result.",
		}, []string{"result"}),
		ingress: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_messages_total",
			Help:      "Messages received from polling channels.",
		}, []string{"channel", "kind"}),
	}
}

func (m *Metrics) Request(operation, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(mode string, ok bool) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(mode, result(ok)).Inc()
}

func (m *Metrics) Attachment(ok bool) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Ingress(channel, kind string) {
	if m == nil {
		return
	}
	m.ingress.WithLabelValues(channel, kind).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RequestCounter exposes one request series, for tests and diagnostics.
func (m *Metrics) RequestCounter(operation, outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(operation, outcome)
}

func (m *Metrics) FallbackCounter(kind string) prometheus.Counter {
	return m.fallbacks.WithLabelValues(kind)
}

// Package metrics exposes Prometheus instrumentation for the session agent
// pipeline: phase transitions, inference calls, and code-fixer invocations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the narrow interface the pipeline components depend on, so
// tests can substitute a no-op implementation without pulling in a real
// Prometheus registry.
type Recorder interface {
	ObservePhaseTransition(phase, fromState, toState string)
	ObserveInferenceCall(provider, model string, promptTokens, completionTokens int, duration time.Duration, success bool)
	ObserveFixerRun(ruleID string, fixed bool)
	ObserveDeploy(kind string, duration time.Duration, success bool)
}

// Prom is the production Recorder backed by prometheus/client_golang.
type Prom struct {
	phaseTransitions *prometheus.CounterVec
	inferenceCalls   *prometheus.CounterVec
	inferenceTokens  *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	fixerRuns        *prometheus.CounterVec
	deploys          *prometheus.CounterVec
	deployLatency    *prometheus.HistogramVec
}

// New registers all appgen metrics against reg and returns a Recorder.
func New(reg prometheus.Registerer) *Prom {
	p := &Prom{
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgen_phase_transitions_total",
			Help: "Count of phase state transitions, labeled by phase name and transition.",
		}, []string{"phase", "from_state", "to_state"}),
		inferenceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgen_inference_calls_total",
			Help: "Count of inference client calls, labeled by provider/model/success.",
		}, []string{"provider", "model", "success"}),
		inferenceTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgen_inference_tokens_total",
			Help: "Count of tokens consumed by inference calls, labeled by direction.",
		}, []string{"provider", "model", "direction"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appgen_inference_call_duration_seconds",
			Help:    "Latency of inference client calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		fixerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgen_fixer_runs_total",
			Help: "Count of deterministic code-fixer invocations, labeled by rule and outcome.",
		}, []string{"rule_id", "fixed"}),
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgen_deploys_total",
			Help: "Count of deploy attempts, labeled by kind (preview/permanent) and success.",
		}, []string{"kind", "success"}),
		deployLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appgen_deploy_duration_seconds",
			Help:    "Latency of deploy operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		p.phaseTransitions, p.inferenceCalls, p.inferenceTokens,
		p.inferenceLatency, p.fixerRuns, p.deploys, p.deployLatency,
	)

	return p
}

// ObservePhaseTransition records a session state-machine transition.
func (p *Prom) ObservePhaseTransition(phase, fromState, toState string) {
	p.phaseTransitions.WithLabelValues(phase, fromState, toState).Inc()
}

// ObserveInferenceCall records latency, token usage, and outcome for a call.
func (p *Prom) ObserveInferenceCall(provider, model string, promptTokens, completionTokens int, duration time.Duration, success bool) {
	p.inferenceCalls.WithLabelValues(provider, model, boolLabel(success)).Inc()
	p.inferenceTokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	p.inferenceTokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	p.inferenceLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// ObserveFixerRun records whether a diagnostic code was successfully fixed.
func (p *Prom) ObserveFixerRun(ruleID string, fixed bool) {
	p.fixerRuns.WithLabelValues(ruleID, boolLabel(fixed)).Inc()
}

// ObserveDeploy records the outcome and latency of a deploy attempt.
func (p *Prom) ObserveDeploy(kind string, duration time.Duration, success bool) {
	p.deploys.WithLabelValues(kind, boolLabel(success)).Inc()
	p.deployLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Noop is a Recorder that discards everything, for tests and for disabling
// metrics entirely.
type Noop struct{}

// Nop returns a no-op Recorder.
func Nop() Recorder { return Noop{} }

// ObservePhaseTransition is a no-op.
func (Noop) ObservePhaseTransition(string, string, string) {}

// ObserveInferenceCall is a no-op.
func (Noop) ObserveInferenceCall(string, string, int, int, time.Duration, bool) {}

// ObserveFixerRun is a no-op.
func (Noop) ObserveFixerRun(string, bool) {}

// ObserveDeploy is a no-op.
func (Noop) ObserveDeploy(string, time.Duration, bool) {}

// Package metrics exposes Prometheus instrumentation for pipelines, the
// regeneration loop, LLM calls and the HTTP surface.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/tripsync/llm"
	"github.com/c360studio/tripsync/workflow"
)

const namespace = "tripsync"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds every collector. It implements workflow.StageObserver,
// service.Observer and llm.CallRecorder.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	pipelineRuns  *prometheus.CounterVec
	regenOutcomes *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec

	llmCalls    *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a fresh registry that
// is never exported.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"pipeline", "stage", "status"}),

		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"pipeline", "status"}),

		regenOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regeneration",
			Name:      "outcomes_total",
			Help:      "Regeneration loop terminal statuses",
		}, []string{"outcome"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),

		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM completion calls by capability, provider and outcome",
		}, []string{"capability", "provider", "status"}),

		llmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM completion latency including retries and fallbacks",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		}, []string{"capability"}),

		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by LLM calls",
		}, []string{"capability", "kind"}),
	}
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// ObserveStage implements workflow.StageObserver.
func (m *Metrics) ObserveStage(pipeline, stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(pipeline, stage, status(err)).Observe(d.Seconds())
}

// ObserveRun counts a finished pipeline run.
func (m *Metrics) ObserveRun(pipeline string, err error) {
	m.pipelineRuns.WithLabelValues(pipeline, status(err)).Inc()
}

// ObserveRegeneration counts a regeneration loop outcome.
func (m *Metrics) ObserveRegeneration(outcome workflow.LoopStatus) {
	m.regenOutcomes.WithLabelValues(outcome.String()).Inc()
}

// ObserveRequest counts an HTTP response.
func (m *Metrics) ObserveRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Record implements llm.CallRecorder.
func (m *Metrics) Record(_ context.Context, r *llm.CallRecord) error {
	provider := r.Provider
	if provider == "" {
		provider = "none"
	}
	st := StatusSuccess
	if !r.Succeeded() {
		st = StatusError
	}
	m.llmCalls.WithLabelValues(r.Capability, provider, st).Inc()
	m.llmDuration.WithLabelValues(r.Capability).Observe(r.Duration.Seconds())
	if r.Usage.PromptTokens > 0 {
		m.llmTokens.WithLabelValues(r.Capability, "prompt").Add(float64(r.Usage.PromptTokens))
	}
	if r.Usage.CompletionTokens > 0 {
		m.llmTokens.WithLabelValues(r.Capability, "completion").Add(float64(r.Usage.CompletionTokens))
	}
	return nil
}

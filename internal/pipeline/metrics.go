package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/raven/internal/relevance"
)

// Metrics holds Prometheus metrics for pipeline runs.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	ItemsTotal          *prometheus.CounterVec
	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec
	CollectorErrors     *prometheus.CounterVec
	LLMTokens           *prometheus.CounterVec
	SubmitsTotal        *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raven_runs_total",
			Help: "Total pipeline runs by outcome.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "raven_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}),
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raven_items_total",
			Help: "Items seen by pipeline stage outcome.",
		}, []string{"stage"}),
		BackendCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raven_backend_calls_total",
			Help: "Analysis backend calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		BackendCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "raven_backend_call_duration_seconds",
			Help:    "Duration of analysis backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"stage"}),
		CollectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raven_collector_errors_total",
			Help: "Collector failures by collector.",
		}, []string{"collector"}),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raven_llm_tokens_total",
			Help: "LLM tokens consumed by direction.",
		}, []string{"direction"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raven_submits_total",
			Help: "Run submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ItemsTotal,
		m.BackendCallsTotal,
		m.BackendCallDuration,
		m.CollectorErrors,
		m.LLMTokens,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns orchestrator hooks that update run and item metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnCollectorError: func(name string) {
			m.CollectorErrors.WithLabelValues(name).Inc()
		},
		OnRunComplete: func(r *Report, err error) {
			status := "success"
			switch {
			case err != nil && IsCancelled(err):
				status = "cancelled"
			case err != nil:
				status = "failed"
			case r.DryRun:
				status = "dry_run"
			}
			m.RunsTotal.WithLabelValues(status).Inc()
			m.RunDuration.Observe(r.Duration().Seconds())
			if err != nil {
				return
			}

			s := r.Summary
			m.ItemsTotal.WithLabelValues("collected").Add(float64(s.Collected))
			m.ItemsTotal.WithLabelValues("age_filtered").Add(float64(s.AgeFilteredOut))
			m.ItemsTotal.WithLabelValues("deduplicated").Add(float64(s.DeduplicatedAway))
			m.ItemsTotal.WithLabelValues("analysis_failed").Add(float64(s.AnalysisFailed))
			m.ItemsTotal.WithLabelValues("excluded").Add(float64(s.ExcludedByRelevance))
			m.ItemsTotal.WithLabelValues("included").Add(float64(s.Included))
		},
	}
}

// RelevanceHooks returns relevance hooks that count backend calls.
func (m *Metrics) RelevanceHooks() relevance.Hooks {
	return relevance.Hooks{
		OnBackendCall: func(stage relevance.Stage, duration float64, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			m.BackendCallsTotal.WithLabelValues(stage.String(), outcome).Inc()
			m.BackendCallDuration.WithLabelValues(stage.String()).Observe(duration)
		},
	}
}

// ObserveTokens records LLM token usage.
func (m *Metrics) ObserveTokens(input, output int64) {
	m.LLMTokens.WithLabelValues("input").Add(float64(input))
	m.LLMTokens.WithLabelValues("output").Add(float64(output))
}

// ServiceHooks returns service hooks that count submissions.
func (m *Metrics) ServiceHooks() ServiceHooks {
	return ServiceHooks{
		OnSubmit: func(result string) {
			m.SubmitsTotal.WithLabelValues(result).Inc()
		},
	}
}

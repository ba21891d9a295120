package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry      *prometheus.Registry
	stageVisits   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	results       *prometheus.CounterVec
	retries       prometheus.Histogram
}

// NewMetrics registers the arbiter collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_stage_visits_total",
			Help: "Total number of stage executions",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_stage_duration_seconds",
			Help:    "Duration of stage executions",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_stage_errors_total",
			Help: "Stages that returned an infrastructure error",
		}, []string{"stage"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_tool_calls_total",
			Help: "Tool dispatches by outcome",
		}, []string{"tool_name", "is_error"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "arbiter_tool_duration_seconds",
			Help: "Duration of tool executions",
		}, []string{"tool_name"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_results_total",
			Help: "Terminal results by kind and error code",
		}, []string{"kind", "code"}),
		retries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_turn_retries",
			Help:    "Validation retries consumed per turn",
			Buckets: []float64{0, 1, 2, 3},
		}),
	}
	m.registry.MustRegister(
		m.stageVisits, m.stageDuration, m.stageErrors,
		m.toolCalls, m.toolDuration, m.results, m.retries,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks records stage and tool activity.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageLeave: func(ctx context.Context, e *domain.StageTransition) {
			m.stageVisits.WithLabelValues(e.Stage).Inc()
			m.stageDuration.WithLabelValues(e.Stage).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.stageErrors.WithLabelValues(e.Stage).Inc()
			}
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			m.toolCalls.WithLabelValues(e.ToolName, strconv.FormatBool(e.IsError)).Inc()
			m.toolDuration.WithLabelValues(e.ToolName).Observe(e.Duration.Seconds())
		},
	}
}

// Sink counts terminal results. Non-terminal events are ignored.
func (m *Metrics) Sink() ports.EventSink {
	return ports.EventSinkFunc(func(ctx context.Context, ev domain.StageEvent) error {
		if ev.Type != domain.EventResult || ev.Result == nil {
			return nil
		}
		m.results.WithLabelValues(string(ev.Result.Kind), string(ev.Result.Code)).Inc()
		m.retries.Observe(float64(ev.Result.RetryCount))
		return nil
	})
}

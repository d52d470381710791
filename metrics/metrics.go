// Package metrics records agent run events as Prometheus collectors.
//
// The CLI is short-lived, so nothing is served over HTTP. Collectors live in
// a private registry and are written once at the end of a run in the text
// exposition format, ready for the node_exporter textfile collector.
package metrics

import (
	"github.com/martinemde/buildagent/agentloop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "buildagent"

// Recorder holds the collectors of one process.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	iterations         prometheus.Histogram
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration prometheus.Histogram
	toolCallsTotal     *prometheus.CounterVec
	toolCallDuration   *prometheus.HistogramVec
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
	loopDetections     prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent runs by outcome (settled or the failure kind).",
		}, []string{"outcome"}),
		iterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_iterations",
			Help:      "LLM round trips per finished run.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		llmRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM round trips by result.",
		}, []string{"result"}),
		llmRequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM round trip latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		toolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Executed tool calls by tool and result.",
		}, []string{"tool", "result"}),
		toolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency by tool.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"tool"}),
		validationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validation task attempts by result.",
		}, []string{"result"}),
		validationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Validation task latency.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		loopDetections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_detections_total",
			Help:      "Times the recent tool calls formed a repeating pattern.",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handle is an agentloop.EventHandler.
func (r *Recorder) Handle(ev agentloop.Event) {
	switch ev.Kind {
	case agentloop.EventRunEnd:
		outcome := "settled"
		if ev.Failure != "" {
			outcome = string(ev.Failure)
		}
		r.runsTotal.WithLabelValues(outcome).Inc()
		r.iterations.Observe(float64(ev.Iteration))
	case agentloop.EventLLMRequestEnd:
		r.llmRequestsTotal.WithLabelValues(result(!ev.IsError)).Inc()
		r.llmRequestDuration.Observe(ev.Duration.Seconds())
	case agentloop.EventToolCallEnd:
		r.toolCallsTotal.WithLabelValues(ev.Tool, result(!ev.IsError)).Inc()
		r.toolCallDuration.WithLabelValues(ev.Tool).Observe(ev.Duration.Seconds())
	case agentloop.EventValidationEnd:
		r.validationsTotal.WithLabelValues(result(ev.Success)).Inc()
		r.validationDuration.Observe(ev.Duration.Seconds())
	case agentloop.EventLoopDetection:
		r.loopDetections.Inc()
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// WriteToTextfile writes every collector to path atomically.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

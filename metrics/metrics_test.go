package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinemde/buildagent/agentloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderWritesTextfile(t *testing.T) {
	r := New()
	r.Handle(agentloop.Event{Kind: agentloop.EventLLMRequestEnd, Duration: 2 * time.Second})
	r.Handle(agentloop.Event{Kind: agentloop.EventLLMRequestEnd, IsError: true})
	r.Handle(agentloop.Event{Kind: agentloop.EventToolCallEnd, Tool: "run_task", Duration: time.Millisecond})
	r.Handle(agentloop.Event{Kind: agentloop.EventToolCallEnd, Tool: "read_file", IsError: true})
	r.Handle(agentloop.Event{Kind: agentloop.EventValidationEnd, Success: false})
	r.Handle(agentloop.Event{Kind: agentloop.EventValidationEnd, Success: true})
	r.Handle(agentloop.Event{Kind: agentloop.EventLoopDetection})
	r.Handle(agentloop.Event{Kind: agentloop.EventRunEnd, Iteration: 4})
	r.Handle(agentloop.Event{Kind: agentloop.EventRunEnd, Iteration: 50, Failure: agentloop.FailureBudget})
	r.Handle(agentloop.Event{Kind: agentloop.EventStateChange})

	path := filepath.Join(t.TempDir(), "buildagent.prom")
	require.NoError(t, r.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	for _, want := range []string{
		`buildagent_runs_total{outcome="settled"} 1`,
		`buildagent_runs_total{outcome="budget"} 1`,
		`buildagent_run_iterations_count 2`,
		`buildagent_llm_requests_total{result="success"} 1`,
		`buildagent_llm_requests_total{result="error"} 1`,
		`buildagent_tool_calls_total{result="success",tool="run_task"} 1`,
		`buildagent_tool_calls_total{result="error",tool="read_file"} 1`,
		`buildagent_validations_total{result="error"} 1`,
		`buildagent_validations_total{result="success"} 1`,
		`buildagent_loop_detections_total 1`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestRecorderFromLoopEvents(t *testing.T) {
	r := New()
	handler := agentloop.EventHandler(r.Handle)
	handler(agentloop.Event{Kind: agentloop.EventRunEnd, Failure: agentloop.FailureTransport, Iteration: 1})

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "buildagent_runs_total")
	assert.Contains(t, names, "buildagent_run_iterations")
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/martinemde/buildagent/agentloop"
	"github.com/martinemde/buildagent/config"
	"github.com/martinemde/buildagent/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMakefile = `## Compile everything
build:
	@echo build

test: build ## Run tests
	@echo test
`

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	dir    string
}

// newHarness builds an app over a temp Make project whose LLM client
// replays steps.
func newHarness(t *testing.T, steps ...unifiedllm.ScriptedStep) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte(testMakefile), 0o644))

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.lookupEnv = func(k string) (string, bool) {
		if k == "OPENAI_API_KEY" {
			return "sk-test", true
		}
		return "", false
	}
	a.newClient = func(_ config.Config, r config.Resolved) (*unifiedllm.Client, error) {
		adapter := unifiedllm.NewScriptedAdapter(r.Provider, steps...)
		return unifiedllm.NewClient(
			unifiedllm.WithProvider(r.Provider, adapter),
			unifiedllm.WithDefaultProvider(r.Provider),
		), nil
	}
	return &harness{app: a, stdout: &stdout, stderr: &stderr, dir: dir}
}

func (h *harness) execute(args ...string) error {
	root := NewRootCmd(h.app)
	root.SetArgs(append(args, "--project", h.dir))
	return root.Execute()
}

func TestRunSettles(t *testing.T) {
	h := newHarness(t, unifiedllm.TextStep("Completed successfully"))
	metricsFile := filepath.Join(t.TempDir(), "run.prom")

	err := h.execute("run", "do nothing", "--provider", "openai", "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Equal(t, "Completed successfully\n", h.stdout.String())

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `buildagent_runs_total{outcome="settled"} 1`)
}

func TestRunWithValidationTask(t *testing.T) {
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not available")
	}
	args, _ := json.Marshal(map[string]string{"task": "build"})
	h := newHarness(t,
		unifiedllm.ToolCallStep("", unifiedllm.ToolCallData{ID: "c1", Name: "run_task", Arguments: args}),
		unifiedllm.TextStep("built"),
		unifiedllm.TextStep("thanks"),
	)

	err := h.execute("run", "--prompt", "build it", "--provider", "openai", "--validation-task", "test")
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "Make target 'test' completed successfully.")
}

func TestRunExitCodes(t *testing.T) {
	listArgs := json.RawMessage(`{"path":"."}`)

	tests := []struct {
		name  string
		steps []unifiedllm.ScriptedStep
		args  []string
		want  int
	}{
		{
			name: "missing instruction",
			args: []string{"run", "--provider", "openai"},
			want: exitConfiguration,
		},
		{
			name: "invalid max iterations",
			args: []string{"run", "go", "--provider", "openai", "--max-iterations", "0"},
			want: exitConfiguration,
		},
		{
			name: "missing credentials",
			args: []string{"run", "go", "--provider", "anthropic"},
			want: exitConfiguration,
		},
		{
			name: "unknown build tool",
			args: []string{"run", "go", "--provider", "openai", "--build-tool", "bazel"},
			want: exitConfiguration,
		},
		{
			name: "budget",
			steps: []unifiedllm.ScriptedStep{
				unifiedllm.ToolCallStep("", unifiedllm.ToolCallData{ID: "c1", Name: "list_files", Arguments: listArgs}),
			},
			args: []string{"run", "go", "--provider", "openai", "--max-iterations", "1"},
			want: exitBudget,
		},
		{
			name:  "transport",
			steps: []unifiedllm.ScriptedStep{unifiedllm.ErrorStep(&unifiedllm.NetworkError{SDKError: unifiedllm.SDKError{Message: "connection refused"}})},
			args:  []string{"run", "go", "--provider", "openai"},
			want:  exitTransport,
		},
		{
			name: "dead end",
			steps: []unifiedllm.ScriptedStep{
				unifiedllm.TextStep("done"),
				unifiedllm.TextStep("still done"),
				unifiedllm.TextStep("really done"),
			},
			args: []string{"run", "go", "--provider", "openai", "--validation-task", "missing-target"},
			want: exitDeadEnd,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.steps...)
			err := h.execute(tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, exitCode(err), err.Error())
			assert.Empty(t, h.stdout.String())
		})
	}
}

func TestRunWithoutBuildTool(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.dir, "Makefile")))
	err := h.execute("run", "go", "--provider", "openai")
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestTasksCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute("tasks"))
	assert.Equal(t, "build - Compile everything\ntest - Run tests\n", h.stdout.String())
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute("version"))
	assert.Equal(t, "buildagent dev\n", h.stdout.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitConfiguration, exitCode(config.ErrMissingCredentials))
	assert.Equal(t, exitConfiguration, exitCode(&agentloop.RunError{Kind: agentloop.FailureConfiguration}))
	assert.Equal(t, exitDeadEnd, exitCode(&agentloop.RunError{Kind: agentloop.FailureDeadEnd}))
}

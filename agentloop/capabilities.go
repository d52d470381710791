package agentloop

import (
	"context"
	"errors"
	"log/slog"
)

// ErrOutsideProject is wrapped by every capability error caused by a path
// that resolves outside the project root.
var ErrOutsideProject = errors.New("access outside project directory is not allowed")

// Outcome is a success or failure carrying a human readable detail.
type Outcome struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// Success returns a successful Outcome.
func Success(detail string) Outcome { return Outcome{Success: true, Detail: detail} }

// Failure returns a failed Outcome.
func Failure(detail string) Outcome { return Outcome{Success: false, Detail: detail} }

// NotYetRun is the validation outcome before any attempt.
func NotYetRun() Outcome { return Failure("the validation has not run yet") }

func (o Outcome) String() string {
	if o.Success {
		return "Success(" + o.Detail + ")"
	}
	return "Failure(" + o.Detail + ")"
}

// Capabilities are the operations the agent may invoke. File operations are
// confined to the project root. A missing file or a failed task is an
// Outcome, not an error.
type Capabilities interface {
	ListFiles(path string) ([]string, error)
	FileExists(path string) (bool, error)
	ReadFile(path string) (Outcome, error)
	WriteFile(path, contents string) error
	ListTasks(ctx context.Context) (map[string]string, error)
	RunTask(ctx context.Context, task, arguments string) Outcome
}

// TaskRunner lists and runs build tasks of one project.
type TaskRunner interface {
	ListTasks(ctx context.Context) (map[string]string, error)
	RunTask(ctx context.Context, task, arguments string) Outcome
}

// ProjectCapabilities binds a sandboxed Workspace and a TaskRunner.
type ProjectCapabilities struct {
	*Workspace
	Tasks  TaskRunner
	Logger *slog.Logger
}

var _ Capabilities = (*ProjectCapabilities)(nil)

// NewProjectCapabilities creates capabilities for the project at root.
func NewProjectCapabilities(ws *Workspace, tasks TaskRunner, logger *slog.Logger) *ProjectCapabilities {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectCapabilities{Workspace: ws, Tasks: tasks, Logger: logger}
}

// ListTasks delegates to the task runner.
func (p *ProjectCapabilities) ListTasks(ctx context.Context) (map[string]string, error) {
	p.Logger.Debug("listing tasks")
	return p.Tasks.ListTasks(ctx)
}

// RunTask delegates to the task runner.
func (p *ProjectCapabilities) RunTask(ctx context.Context, task, arguments string) Outcome {
	p.Logger.Debug("running task", "task", task, "arguments", arguments)
	out := p.Tasks.RunTask(ctx, task, arguments)
	p.Logger.Debug("task finished", "task", task, "success", out.Success)
	return out
}

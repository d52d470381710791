package agentloop

import (
	"context"

	"github.com/martinemde/buildagent/buildtool"
)

// BuildTaskRunner runs tasks of the project at Dir through a build tool.
type BuildTaskRunner struct {
	Runner buildtool.Runner
	Dir    string
}

var _ TaskRunner = (*BuildTaskRunner)(nil)

// ListTasks returns task name to description.
func (b *BuildTaskRunner) ListTasks(ctx context.Context) (map[string]string, error) {
	return b.Runner.ListTasks(ctx, b.Dir)
}

// RunTask runs task and maps the build result to an Outcome.
func (b *BuildTaskRunner) RunTask(ctx context.Context, task, arguments string) Outcome {
	res := b.Runner.Run(ctx, b.Dir, task, arguments)
	if res.Success {
		return Success(res.Summary)
	}
	return Failure(res.Summary)
}

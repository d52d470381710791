package agentloop

import (
	"context"
	"fmt"
)

const (
	// DefaultMaxValidationDetail bounds the failure detail fed back to the
	// model.
	DefaultMaxValidationDetail = 20000
	minValidationDetail        = 4096
)

// ValidationGate runs the configured validation task once per attempt.
type ValidationGate struct {
	runner    TaskRunner
	task      string
	maxDetail int
}

// NewValidationGate creates a gate for task. maxDetail <= 0 selects the
// default; smaller positive values are raised to the floor.
func NewValidationGate(runner TaskRunner, task string, maxDetail int) *ValidationGate {
	switch {
	case maxDetail <= 0:
		maxDetail = DefaultMaxValidationDetail
	case maxDetail < minValidationDetail:
		maxDetail = minValidationDetail
	}
	return &ValidationGate{runner: runner, task: task, maxDetail: maxDetail}
}

// Task returns the validation task name.
func (g *ValidationGate) Task() string { return g.task }

// Validate runs the task exactly once.
func (g *ValidationGate) Validate(ctx context.Context) Outcome {
	out := g.runner.RunTask(ctx, g.task, "")
	out.Detail = truncateHeadTail(out.Detail, g.maxDetail,
		fmt.Sprintf("output of validation task '%s'", g.task))
	return out
}

package agentloop

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a run aborted.
type FailureKind string

const (
	FailureConfiguration FailureKind = "configuration"
	FailureBudget        FailureKind = "budget"
	FailureTransport     FailureKind = "transport"
	FailureDeadEnd       FailureKind = "dead_end"
)

var (
	// ErrMissingInstruction is returned when Run is called with an empty
	// instruction.
	ErrMissingInstruction = errors.New("instruction is required")

	// ErrBudgetExhausted is wrapped when the next round trip would exceed the
	// iteration maximum.
	ErrBudgetExhausted = errors.New("iteration budget exhausted")

	// ErrDeadEnd is wrapped when the model twice answered a retry without
	// calling any tool.
	ErrDeadEnd = errors.New("model stopped calling tools after a failed validation")
)

// RunError is returned by Loop.Run when the run does not settle.
type RunError struct {
	Kind       FailureKind
	State      State
	Iterations int
	Err        error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("agent run aborted (%s) in state %s after %d iterations: %v",
		e.Kind, e.State, e.Iterations, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is not a RunError.
func KindOf(err error) FailureKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

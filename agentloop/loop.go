package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the control state of an agent run.
type State string

const (
	StateRequesting            State = "requesting"
	StateAwaitingToolExecution State = "awaiting_tool_execution"
	StateValidating            State = "validating"
	StateRetrying              State = "retrying"
	StateSettled               State = "settled"
	StateAborted               State = "aborted"
)

const (
	// DefaultMaxIterations applies when no validation task is configured.
	DefaultMaxIterations = 50
	// DefaultMaxIterationsWithValidation applies when one is.
	DefaultMaxIterationsWithValidation = 100

	completedSuccessfully = "Completed successfully"
	deadEndPrompt         = "You need to actually run the required tools."
)

// LoopConfig configures a Loop.
type LoopConfig struct {
	// MaxIterations bounds LLM round trips. 0 selects the default.
	MaxIterations int
	// ValidationTask is run after the model settles. Empty disables
	// validation.
	ValidationTask string
	// MaxValidationDetail bounds the failure detail fed back to the model.
	MaxValidationDetail int
	// LoopDetectionWindow is the number of recent tool calls checked for a
	// repeating pattern. 0 selects the default; negative disables.
	LoopDetectionWindow int
	Logger              *slog.Logger
	Handlers            []EventHandler
}

// AgentRun is the state of one run. It is returned from Run and discarded
// afterwards.
type AgentRun struct {
	ID                 uuid.UUID
	State              State
	Iterations         int
	MaxIterations      int
	Validation         Outcome
	ValidationAttempts int
	ToolCallsExecuted  int
	SettledText        string
	Output             string
}

// Loop drives one session to settlement.
type Loop struct {
	session SessionPort
	tools   *ToolRegistry
	caps    Capabilities
	gate    *ValidationGate
	config  LoopConfig
	logger  *slog.Logger
}

// NewLoop creates a loop over session. Tool calls are dispatched through
// tools against caps; the validation task, when set, runs through caps.
func NewLoop(session SessionPort, tools *ToolRegistry, caps Capabilities, config LoopConfig) *Loop {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.LoopDetectionWindow == 0 {
		config.LoopDetectionWindow = DefaultLoopDetectionWindow
	}
	l := &Loop{session: session, tools: tools, caps: caps, config: config, logger: logger}
	if config.ValidationTask != "" && caps != nil {
		l.gate = NewValidationGate(caps, config.ValidationTask, config.MaxValidationDetail)
	}
	return l
}

// MaxIterations returns the effective round trip budget.
func (l *Loop) MaxIterations() int {
	if l.config.MaxIterations > 0 {
		return l.config.MaxIterations
	}
	if l.config.ValidationTask != "" {
		return DefaultMaxIterationsWithValidation
	}
	return DefaultMaxIterations
}

// Run executes instruction until the run settles or aborts. On settlement
// the returned run's Output is the detail of the final validation outcome.
// Otherwise the error is a *RunError and the run is still returned.
func (l *Loop) Run(ctx context.Context, instruction string) (*AgentRun, error) {
	run := &AgentRun{
		ID:            uuid.New(),
		State:         StateRequesting,
		MaxIterations: l.MaxIterations(),
		Validation:    NotYetRun(),
	}
	r := &runState{
		loop:   l,
		run:    run,
		events: newEmitter(run.ID.String(), l.config.Handlers),
	}

	if err := l.checkConfig(instruction); err != nil {
		return run, r.abort(FailureConfiguration, err)
	}

	r.events.emit(Event{Kind: EventRunStart, State: run.State, Message: instruction})
	if err := r.drive(ctx, instruction); err != nil {
		return run, err
	}
	r.events.emit(Event{Kind: EventRunEnd, State: run.State, Iteration: run.Iterations, Success: true})
	return run, nil
}

func (l *Loop) checkConfig(instruction string) error {
	switch {
	case strings.TrimSpace(instruction) == "":
		return ErrMissingInstruction
	case l.session == nil:
		return errors.New("no session configured")
	case l.tools == nil:
		return errors.New("no tool registry configured")
	case l.caps == nil:
		return errors.New("no capabilities configured")
	}
	return nil
}

// runState is the mutable part of one Run.
type runState struct {
	loop    *Loop
	run     *AgentRun
	events  *emitter
	tracker callTracker
}

// drive implements the transitions from the first request to settlement.
func (r *runState) drive(ctx context.Context, instruction string) error {
	l := r.loop
	msgs, err := r.roundTrip(ctx, func() ([]Message, error) {
		return l.session.RequestResponses(ctx, instruction)
	})
	if err != nil {
		return err
	}

	afterRetry := false
	for {
		if ContainsToolCalls(msgs) {
			r.setState(StateAwaitingToolExecution)
			results := r.executeTools(ctx, ToolCalls(msgs))
			r.setState(StateRequesting)
			msgs, err = r.roundTrip(ctx, func() ([]Message, error) {
				return l.session.SendToolResults(ctx, results)
			})
			if err != nil {
				return err
			}
			afterRetry = false
			continue
		}

		r.run.SettledText = AssistantText(msgs)

		if afterRetry {
			msgs, err = r.roundTrip(ctx, func() ([]Message, error) {
				return l.session.RequestResponses(ctx, deadEndPrompt)
			})
			if err != nil {
				return err
			}
			if !ContainsToolCalls(msgs) {
				r.run.SettledText = AssistantText(msgs)
				return r.abort(FailureDeadEnd, ErrDeadEnd)
			}
			afterRetry = false
			continue
		}

		r.setState(StateValidating)
		if l.gate == nil {
			detail := r.run.SettledText
			if detail == "" {
				detail = completedSuccessfully
			}
			r.run.Validation = Success(detail)
			r.settle()
			return nil
		}

		r.validate(ctx)
		if r.run.Validation.Success {
			if r.run.Iterations >= r.run.MaxIterations {
				l.logger.Warn("round trip budget spent, skipping closing turn",
					"run_id", r.run.ID, "max_iterations", r.run.MaxIterations)
				r.settle()
				return nil
			}
			if _, err := r.roundTrip(ctx, func() ([]Message, error) {
				return l.session.RequestResponses(ctx, r.run.Validation.Detail)
			}); err != nil {
				return err
			}
			r.settle()
			return nil
		}

		r.setState(StateRetrying)
		prompt := retryPrompt(l.gate.Task(), r.run.Validation.Detail, instruction)
		msgs, err = r.roundTrip(ctx, func() ([]Message, error) {
			return l.session.RequestResponses(ctx, prompt)
		})
		if err != nil {
			return err
		}
		afterRetry = true
	}
}

func retryPrompt(task, failure, instruction string) string {
	return fmt.Sprintf("The validation task %s has been run and failed with:\n%s\n\n"+
		"Do not run %s again, fix the errors ultimately trying to:\n%s",
		task, failure, task, instruction)
}

// roundTrip performs one budgeted LLM round trip.
func (r *runState) roundTrip(ctx context.Context, fn func() ([]Message, error)) ([]Message, error) {
	if r.run.Iterations >= r.run.MaxIterations {
		return nil, r.abort(FailureBudget,
			fmt.Errorf("%w: %d round trips allowed", ErrBudgetExhausted, r.run.MaxIterations))
	}
	if err := ctx.Err(); err != nil {
		return nil, r.abort(FailureTransport, err)
	}

	r.run.Iterations++
	start := time.Now()
	r.events.emit(Event{Kind: EventLLMRequestStart, State: r.run.State, Iteration: r.run.Iterations})
	msgs, err := fn()
	r.events.emit(Event{
		Kind:      EventLLMRequestEnd,
		State:     r.run.State,
		Iteration: r.run.Iterations,
		Duration:  time.Since(start),
		IsError:   err != nil,
	})
	if err != nil {
		return nil, r.abort(FailureTransport, err)
	}
	return msgs, nil
}

// executeTools runs every call concurrently and returns the results in call
// order once all have finished.
func (r *runState) executeTools(ctx context.Context, calls []ToolCall) []ToolResult {
	l := r.loop
	results := make([]ToolResult, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			r.events.emit(Event{Kind: EventToolCallStart, State: StateAwaitingToolExecution,
				Iteration: r.run.Iterations, Tool: call.Name, CallID: call.ID})
			results[i] = l.tools.Execute(ctx, call, l.caps)
			r.events.emit(Event{Kind: EventToolCallEnd, State: StateAwaitingToolExecution,
				Iteration: r.run.Iterations, Tool: call.Name, CallID: call.ID,
				IsError: results[i].IsError, Duration: time.Since(start)})
			return nil
		})
	}
	_ = g.Wait()
	r.run.ToolCallsExecuted += len(calls)

	r.tracker.record(calls)
	if r.tracker.repeating(l.config.LoopDetectionWindow) {
		r.events.emit(Event{Kind: EventLoopDetection, State: r.run.State, Iteration: r.run.Iterations,
			Message: fmt.Sprintf("the last %d tool calls follow a repeating pattern", l.config.LoopDetectionWindow)})
	}
	return results
}

func (r *runState) validate(ctx context.Context) {
	start := time.Now()
	r.events.emit(Event{Kind: EventValidationStart, State: r.run.State, Message: r.loop.gate.Task()})
	r.run.Validation = r.loop.gate.Validate(ctx)
	r.run.ValidationAttempts++
	r.events.emit(Event{Kind: EventValidationEnd, State: r.run.State, Message: r.loop.gate.Task(),
		Success: r.run.Validation.Success, Duration: time.Since(start)})
}

func (r *runState) setState(s State) {
	if r.run.State == s {
		return
	}
	r.run.State = s
	r.events.emit(Event{Kind: EventStateChange, State: s, Iteration: r.run.Iterations})
}

func (r *runState) settle() {
	r.setState(StateSettled)
	r.run.Output = r.run.Validation.Detail
}

// abort moves the run to Aborted and returns the RunError describing it.
func (r *runState) abort(kind FailureKind, cause error) error {
	err := &RunError{Kind: kind, State: r.run.State, Iterations: r.run.Iterations, Err: cause}
	r.run.State = StateAborted
	r.events.emit(Event{Kind: EventError, State: err.State, Iteration: r.run.Iterations,
		Failure: kind, Message: cause.Error()})
	r.events.emit(Event{Kind: EventRunEnd, State: StateAborted, Iteration: r.run.Iterations, Failure: kind})
	r.loop.logger.Debug("run aborted", "run_id", r.run.ID, "kind", kind, "error", cause)
	return err
}

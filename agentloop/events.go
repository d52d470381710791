package agentloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart        EventKind = "run_start"
	EventRunEnd          EventKind = "run_end"
	EventStateChange     EventKind = "state_change"
	EventLLMRequestStart EventKind = "llm_request_start"
	EventLLMRequestEnd   EventKind = "llm_request_end"
	EventToolCallStart   EventKind = "tool_call_start"
	EventToolCallEnd     EventKind = "tool_call_end"
	EventValidationStart EventKind = "validation_start"
	EventValidationEnd   EventKind = "validation_end"
	EventLoopDetection   EventKind = "loop_detection"
	EventError           EventKind = "error"
)

// Event is emitted synchronously by the loop. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	State     State         `json:"state,omitempty"`
	Iteration int           `json:"iteration,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
	Success   bool          `json:"success,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Failure   FailureKind   `json:"failure,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// EventHandler receives run events. Handlers are called one at a time.
type EventHandler func(Event)

// emitter fans events out to handlers.
type emitter struct {
	runID    string
	handlers []EventHandler
	mu       sync.Mutex
}

func newEmitter(runID string, handlers []EventHandler) *emitter {
	return &emitter{runID: runID, handlers: handlers}
}

func (e *emitter) emit(ev Event) {
	if len(e.handlers) == 0 {
		return
	}
	ev.RunID = e.runID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.handlers {
		h(ev)
	}
}

// LogEvents returns a handler writing events to logger. Run boundaries and
// validation results log at Info, warnings and errors at their own levels,
// everything else at Debug.
func LogEvents(logger *slog.Logger) EventHandler {
	return func(ev Event) {
		level := slog.LevelDebug
		switch ev.Kind {
		case EventRunStart, EventRunEnd, EventValidationEnd:
			level = slog.LevelInfo
		case EventLoopDetection:
			level = slog.LevelWarn
		case EventError:
			level = slog.LevelError
		}

		attrs := []slog.Attr{slog.String("run_id", ev.RunID)}
		if ev.State != "" {
			attrs = append(attrs, slog.String("state", string(ev.State)))
		}
		if ev.Iteration > 0 {
			attrs = append(attrs, slog.Int("iteration", ev.Iteration))
		}
		if ev.Tool != "" {
			attrs = append(attrs, slog.String("tool", ev.Tool), slog.String("call_id", ev.CallID))
		}
		if ev.Kind == EventToolCallEnd {
			attrs = append(attrs, slog.Bool("is_error", ev.IsError))
		}
		if ev.Kind == EventValidationEnd || ev.Kind == EventRunEnd {
			attrs = append(attrs, slog.Bool("success", ev.Success))
		}
		if ev.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", ev.Duration))
		}
		if ev.Failure != "" {
			attrs = append(attrs, slog.String("failure", string(ev.Failure)))
		}
		if ev.Message != "" {
			attrs = append(attrs, slog.String("message", ev.Message))
		}
		logger.LogAttrs(context.Background(), level, string(ev.Kind), attrs...)
	}
}

package unifiedllm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedStep is one canned reply of a ScriptedAdapter. When Err is set it
// is returned instead of the response.
type ScriptedStep struct {
	Response *Response
	Err      error
}

// ScriptedAdapter is a deterministic ProviderAdapter that replays a fixed
// list of steps and records every request it receives.
type ScriptedAdapter struct {
	name string

	mu       sync.Mutex
	index    int
	steps    []ScriptedStep
	requests []Request
}

// NewScriptedAdapter creates an adapter registered under name.
func NewScriptedAdapter(name string, steps ...ScriptedStep) *ScriptedAdapter {
	cloned := make([]ScriptedStep, len(steps))
	copy(cloned, steps)
	return &ScriptedAdapter{name: name, steps: cloned}
}

// TextStep is a step answering with plain assistant text.
func TextStep(text string) ScriptedStep {
	return ScriptedStep{Response: &Response{
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop"},
	}}
}

// ToolCallStep is a step answering with the given tool calls and optional text.
func ToolCallStep(text string, calls ...ToolCallData) ScriptedStep {
	var parts []ContentPart
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	for i := range calls {
		call := calls[i]
		parts = append(parts, ContentPart{Kind: ContentToolCall, ToolCall: &call})
	}
	return ScriptedStep{Response: &Response{
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: "tool_calls"},
	}}
}

// ErrorStep is a step failing with err.
func ErrorStep(err error) ScriptedStep {
	return ScriptedStep{Err: err}
}

// Name returns the provider identifier.
func (s *ScriptedAdapter) Name() string {
	return s.name
}

// Complete replays the next step.
func (s *ScriptedAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.index >= len(s.steps) {
		return nil, &InvalidResponseError{SDKError: SDKError{
			Message: fmt.Sprintf("script exhausted at step %d", s.index+1),
		}}
	}
	step := s.steps[s.index]
	s.index++
	if step.Err != nil {
		return nil, step.Err
	}

	resp := *step.Response
	resp.Message.Content = append([]ContentPart(nil), step.Response.Message.Content...)
	if resp.Provider == "" {
		resp.Provider = s.name
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Message.Role == "" {
		resp.Message.Role = RoleAssistant
	}
	return &resp, nil
}

// Requests returns a copy of every request received so far.
func (s *ScriptedAdapter) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Remaining reports how many steps have not been replayed.
func (s *ScriptedAdapter) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.index
}

package agentloop

import (
	"encoding/json"
	"strings"
)

// MessageKind discriminates the items of one model turn.
type MessageKind string

const (
	MessageAssistantText MessageKind = "assistant_text"
	MessageToolCall      MessageKind = "tool_call"
	MessageToolResult    MessageKind = "tool_result"
)

// ToolCall is a capability invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult answers exactly one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Message is one item of a model turn.
type Message struct {
	Kind   MessageKind `json:"kind"`
	Text   string      `json:"text,omitempty"`
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}

// TextMessage wraps assistant text.
func TextMessage(text string) Message {
	return Message{Kind: MessageAssistantText, Text: text}
}

// CallMessage wraps a tool call.
func CallMessage(call ToolCall) Message {
	return Message{Kind: MessageToolCall, Call: &call}
}

// ToolCalls returns the tool calls of a turn in order.
func ToolCalls(msgs []Message) []ToolCall {
	var calls []ToolCall
	for _, m := range msgs {
		if m.Kind == MessageToolCall && m.Call != nil {
			calls = append(calls, *m.Call)
		}
	}
	return calls
}

// ContainsToolCalls reports whether any message of the turn is a tool call.
func ContainsToolCalls(msgs []Message) bool {
	for _, m := range msgs {
		if m.Kind == MessageToolCall && m.Call != nil {
			return true
		}
	}
	return false
}

// AssistantText joins the assistant text of a turn with newlines.
func AssistantText(msgs []Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Kind == MessageAssistantText && m.Text != "" {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n")
}

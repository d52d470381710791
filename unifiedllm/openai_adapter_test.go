package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAITestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIAdapterToolCalls(t *testing.T) {
	var sent map[string]any
	srv := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{
					"id": "call_a",
					"type": "function",
					"function": {"name": "read_file", "arguments": "{\"path\":\"build.gradle\"}"}
				}]
			}
		}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`, &sent)

	adapter := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"))
	resp, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{
			SystemMessage("You are a build agent."),
			UserMessage("fix it"),
			{Role: RoleAssistant, Content: []ContentPart{ToolCallPart("call_0", "list_tasks", json.RawMessage(`{}`))}},
			ToolResultMessage("call_0", "list_tasks", "build - Assembles", false),
		},
		ToolDefs: []ToolDefinition{{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
		ToolChoice: &ToolChoice{Mode: "auto"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sent["model"] != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %v", sent["model"])
	}
	if sent["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", sent["tool_choice"])
	}
	msgs, _ := sent["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages sent, got %d", len(msgs))
	}
	last, _ := msgs[3].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_0" || last["content"] != "build - Assembles" {
		t.Errorf("unexpected tool message: %v", last)
	}

	calls := resp.ToolCallsFromResponse()
	if len(calls) != 1 || calls[0].ID != "call_a" || calls[0].Name != "read_file" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
	if string(calls[0].Arguments) != `{"path":"build.gradle"}` {
		t.Errorf("unexpected arguments %s", calls[0].Arguments)
	}
	if resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected tool_calls, got %q", resp.FinishReason.Reason)
	}
	if resp.Usage.TotalTokens != 19 {
		t.Errorf("expected 19 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if resp.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", resp.Provider)
	}
}

func TestOpenAIAdapterText(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-2",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Done."}}]
	}`, nil)

	adapter := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"), WithOpenAIModel("gpt-4o-mini"))
	resp, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Done." {
		t.Errorf("expected %q, got %q", "Done.", resp.Text())
	}
	if len(resp.ToolCallsFromResponse()) != 0 {
		t.Error("expected no tool calls")
	}
}

func TestOpenAIAdapterErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"error": {"message": "Incorrect API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			check:  func(err error) bool { var e *AuthenticationError; return errors.As(err, &e) },
		},
		{
			name:   "rate limit",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"message": "Slow down", "type": "requests", "code": "rate_limit_exceeded"}}`,
			check:  func(err error) bool { var e *RateLimitError; return errors.As(err, &e) },
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"message": "Out of credit", "type": "insufficient_quota", "code": "insufficient_quota"}}`,
			check:  func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) },
		},
		{
			name:   "context length",
			status: http.StatusBadRequest,
			body:   `{"error": {"message": "Too long", "type": "invalid_request_error", "code": "context_length_exceeded"}}`,
			check:  func(err error) bool { var e *ContextLengthError; return errors.As(err, &e) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenAITestServer(t, tt.status, tt.body, nil)
			adapter := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"))
			_, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type %T: %v", err, err)
			}
		})
	}
}

func TestOpenAIAdapterNoChoices(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, `{"id": "x", "model": "gpt-4o", "choices": []}`, nil)
	adapter := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"))
	_, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
}

func TestOpenAIAdapterNamedToolChoice(t *testing.T) {
	adapter := NewOpenAIAdapter("sk-test")
	creq := adapter.translateRequest(Request{
		ToolDefs:   []ToolDefinition{{Name: "run_task"}},
		ToolChoice: &ToolChoice{Mode: "named", ToolName: "run_task"},
	})
	raw, err := json.Marshal(creq.ToolChoice)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var choice map[string]any
	if err := json.Unmarshal(raw, &choice); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fn, _ := choice["function"].(map[string]any)
	if choice["type"] != "function" || fn["name"] != "run_task" {
		t.Errorf("unexpected tool choice %s", raw)
	}
}

func TestOpenAIAdapterDefaultSampling(t *testing.T) {
	body := `{"id": "c", "model": "gpt-4o", "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ok"}}]}`

	var sent map[string]any
	srv := newOpenAITestServer(t, http.StatusOK, body, &sent)
	adapter := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"), WithOpenAIMaxTokens(123), WithOpenAITemperature(0.5))
	if _, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent["max_completion_tokens"] != float64(123) {
		t.Errorf("expected max_completion_tokens 123, got %v", sent["max_completion_tokens"])
	}
	if sent["temperature"] != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", sent["temperature"])
	}

	maxTokens := 7
	temp := 0.25
	_, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}, MaxTokens: &maxTokens, Temperature: &temp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent["max_completion_tokens"] != float64(7) {
		t.Errorf("request max tokens should win, got %v", sent["max_completion_tokens"])
	}
	if sent["temperature"] != 0.25 {
		t.Errorf("request temperature should win, got %v", sent["temperature"])
	}
}

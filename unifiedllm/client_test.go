package unifiedllm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	calls    atomic.Int32
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Message: Message{
				Role:    RoleAssistant,
				Content: []ContentPart{TextPart(text)},
			},
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if resp.Provider != "test-provider" {
		t.Errorf("expected provider %q, got %q", "test-provider", resp.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")

	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	// Explicit provider.
	resp, err := client.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Hi")},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Anthropic response" {
		t.Errorf("expected Anthropic response, got %q", resp.Text())
	}

	// Default provider.
	resp, err = client.Complete(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("expected OpenAI response, got %q", resp.Text())
	}
}

func TestClientRoutesByCatalogWithoutDefault(t *testing.T) {
	client := &Client{providers: map[string]ProviderAdapter{
		"openai":    newMockAdapter("openai", "openai"),
		"anthropic": newMockAdapter("anthropic", "anthropic"),
	}}

	resp, err := client.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "anthropic" {
		t.Errorf("expected catalog routing to anthropic, got %q", resp.Text())
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for no provider")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientUnregisteredProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	_, err := client.Complete(context.Background(), Request{
		Provider: "groq",
		Messages: []Message{UserMessage("Hi")},
	})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestClientMiddleware(t *testing.T) {
	mock := newMockAdapter("test", "response")
	called := false

	mw := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		called = true
		return next(ctx, req)
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw),
	)

	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("middleware was not called")
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	mock := newMockAdapter("test", "response")
	var order []int

	mw1 := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		order = append(order, 1)
		resp, err := next(ctx, req)
		order = append(order, -1)
		return resp, err
	}
	mw2 := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		order = append(order, 2)
		resp, err := next(ctx, req)
		order = append(order, -2)
		return resp, err
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw1, mw2),
	)

	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Onion pattern: first registered runs first for request, reverse for response.
	expected := []int{1, 2, -2, -1}
	if len(order) != len(expected) {
		t.Fatalf("expected %d middleware calls, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("position %d: expected %d, got %d", i, v, order[i])
		}
	}
}

func TestClientRetryMiddleware(t *testing.T) {
	adapter := NewScriptedAdapter("test",
		ErrorStep(&RateLimitError{ProviderError: ProviderError{Provider: "test", StatusCode: 429, Retryable: true}}),
		TextStep("recovered"),
	)
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, MaxDelay: 1, BackoffMultiplier: 1}
	client := NewClient(WithProvider("test", adapter), WithMiddleware(RetryMiddleware(policy)))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", resp.Text())
	}
	if got := len(adapter.Requests()); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClientWithoutRetryMiddlewareFailsFast(t *testing.T) {
	mock := &mockAdapter{name: "test", err: &ServerError{ProviderError: ProviderError{Provider: "test", StatusCode: 503, Retryable: true}}}
	client := NewClient(WithProvider("test", mock))

	start := time.Now()
	_, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := mock.calls.Load(); n != 1 {
		t.Errorf("expected exactly one attempt, got %d", n)
	}
	if time.Since(start) > time.Second {
		t.Error("client without retry middleware should not back off")
	}
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	mock := newMockAdapter("dynamic", "dynamic response")
	client.RegisterProvider("dynamic", mock)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "dynamic response" {
		t.Errorf("expected %q, got %q", "dynamic response", resp.Text())
	}
	if client.DefaultProvider() != "dynamic" {
		t.Errorf("expected default provider %q, got %q", "dynamic", client.DefaultProvider())
	}
}

func TestClientAutoSingleProviderDefault(t *testing.T) {
	mock := newMockAdapter("only", "only response")
	client := NewClient(WithProvider("only", mock))

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "only response" {
		t.Errorf("expected %q, got %q", "only response", resp.Text())
	}
}

func TestClientProviders(t *testing.T) {
	client := NewClient(
		WithProvider("openai", newMockAdapter("openai", "")),
		WithProvider("anthropic", newMockAdapter("anthropic", "")),
	)
	got := client.Providers()
	if len(got) != 2 || got[0] != "anthropic" || got[1] != "openai" {
		t.Errorf("expected sorted providers, got %v", got)
	}
}

type closingAdapter struct {
	*mockAdapter
	closed bool
}

func (c *closingAdapter) Close() error {
	c.closed = true
	return nil
}

func TestClientClose(t *testing.T) {
	adapter := &closingAdapter{mockAdapter: newMockAdapter("test", "")}
	client := NewClient(WithProvider("test", adapter))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestScriptedAdapterReplaysAndRecords(t *testing.T) {
	adapter := NewScriptedAdapter("scripted",
		ToolCallStep("looking", ToolCallData{ID: "c1", Name: "list_files", Arguments: []byte(`{"path":"."}`)}),
		TextStep("done"),
	)
	client := NewClient(WithProvider("scripted", adapter))

	resp, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("go")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := resp.ToolCallsFromResponse()
	if len(calls) != 1 || calls[0].Name != "list_files" {
		t.Fatalf("expected list_files call, got %+v", calls)
	}
	if resp.Text() != "looking" {
		t.Errorf("expected text %q, got %q", "looking", resp.Text())
	}
	if resp.Model != "m" {
		t.Errorf("expected model to echo request, got %q", resp.Model)
	}

	resp, err = client.Complete(context.Background(), Request{Messages: []Message{UserMessage("next")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "done" {
		t.Errorf("expected %q, got %q", "done", resp.Text())
	}
	if adapter.Remaining() != 0 {
		t.Errorf("expected script consumed, %d left", adapter.Remaining())
	}

	_, err = client.Complete(context.Background(), Request{Messages: []Message{UserMessage("more")}})
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidResponseError once exhausted, got %v", err)
	}
	if got := len(adapter.Requests()); got != 3 {
		t.Errorf("expected 3 recorded requests, got %d", got)
	}
}

func TestScriptedAdapterHonorsCancellation(t *testing.T) {
	adapter := NewScriptedAdapter("scripted", TextStep("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Complete(ctx, Request{})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected cause to be context.Canceled")
	}
	if adapter.Remaining() != 1 {
		t.Error("cancelled request must not consume a step")
	}
}

package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to the OpenAI chat completions API (or any compatible
// endpoint) with native tool calling.
type OpenAIAdapter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature *float64
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*openai.ClientConfig, *OpenAIAdapter)

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(_ *openai.ClientConfig, a *OpenAIAdapter) {
		a.model = model
	}
}

// WithOpenAIBaseURL points the adapter at a compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(cfg *openai.ClientConfig, _ *OpenAIAdapter) {
		cfg.BaseURL = url
	}
}

// WithOpenAIMaxTokens sets the completion token limit used when a request
// does not carry one.
func WithOpenAIMaxTokens(n int) OpenAIOption {
	return func(_ *openai.ClientConfig, a *OpenAIAdapter) {
		a.maxTokens = n
	}
}

// WithOpenAITemperature sets the sampling temperature used when a request
// does not carry one.
func WithOpenAITemperature(t float64) OpenAIOption {
	return func(_ *openai.ClientConfig, a *OpenAIAdapter) {
		a.temperature = &t
	}
}

// NewOpenAIAdapter creates an adapter authenticated with apiKey.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	a := &OpenAIAdapter{}
	for _, opt := range opts {
		opt(&cfg, a)
	}
	if a.model == "" {
		if info := DefaultModel("openai"); info != nil {
			a.model = info.ID
		}
	}
	a.client = openai.NewClientWithConfig(cfg)
	slog.Debug("initialized openai adapter", "model", a.model, "base_url", cfg.BaseURL)
	return a
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// SupportsToolChoice reports whether the adapter supports a tool choice mode.
func (a *OpenAIAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required", "named":
		return true
	}
	return false
}

// Complete sends a chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	creq := a.translateRequest(req)

	resp, err := a.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, a.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &InvalidResponseError{SDKError: SDKError{Message: "openai returned no choices"}}
	}
	slog.Debug("received response from openai", "finish_reason", resp.Choices[0].FinishReason)
	return a.buildResponse(resp), nil
}

func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}
	creq := openai.ChatCompletionRequest{Model: model}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.TextContent(),
			})
		case RoleUser:
			creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.TextContent(),
			})
		case RoleAssistant:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.TextContent(),
			}
			for _, call := range msg.ToolCalls() {
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			creq.Messages = append(creq.Messages, out)
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    part.ToolResult.Text(),
					ToolCallID: part.ToolResult.ToolCallID,
				})
			}
		}
	}

	for _, def := range req.ToolDefs {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	if req.ToolChoice != nil && len(creq.Tools) > 0 {
		if req.ToolChoice.Mode == "named" {
			creq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.ToolName},
			}
		} else {
			creq.ToolChoice = req.ToolChoice.Mode
		}
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	} else if a.temperature != nil {
		creq.Temperature = float32(*a.temperature)
	}
	if req.MaxTokens != nil {
		creq.MaxCompletionTokens = *req.MaxTokens
	} else if a.maxTokens > 0 {
		creq.MaxCompletionTokens = a.maxTokens
	}
	return creq
}

func (a *OpenAIAdapter) buildResponse(resp openai.ChatCompletionResponse) *Response {
	choice := resp.Choices[0]

	var parts []ContentPart
	if choice.Message.Content != "" {
		parts = append(parts, TextPart(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		args := []byte(call.Function.Arguments)
		if len(args) == 0 {
			args = []byte("{}")
		}
		parts = append(parts, ToolCallPart(call.ID, call.Function.Name, args))
	}

	reason := string(choice.FinishReason)
	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		reason = "tool_calls"
	case openai.FinishReasonContentFilter:
		reason = "content_filter"
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if d := resp.Usage.CompletionTokensDetails; d != nil && d.ReasoningTokens > 0 {
		n := d.ReasoningTokens
		usage.ReasoningTokens = &n
	}

	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Provider:     a.Name(),
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: reason, Raw: string(choice.FinishReason)},
		Usage:        usage,
	}
}

func (a *OpenAIAdapter) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, a.Name(), code, err, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, fmt.Sprintf("request failed: %v", reqErr.Err), a.Name(), "", err, nil)
	}
	if errors.Is(err, context.Canceled) {
		return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: "request timed out", Cause: err}}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{SDKError: SDKError{Message: "network error", Cause: err}}
	}
	return &NetworkError{SDKError: SDKError{Message: "openai request failed", Cause: err}}
}

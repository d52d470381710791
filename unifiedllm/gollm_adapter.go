package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// gollm exposes a single-prompt API, so the conversation is flattened into
// one prompt and tool calls are recovered from the generated text.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	endpoint    string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithEndpoint points the adapter at a non-default endpoint (ollama).
func WithEndpoint(endpoint string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.endpoint = endpoint
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := DefaultModel(provider); info != nil {
			model = info.ID
		} else {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("no model configured for provider %q", provider),
			}}
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // Retries belong to the client binding.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	if cfg.endpoint != "" {
		gollmOpts = append(gollmOpts, gollm.SetOllamaEndpoint(cfg.endpoint))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("failed to create gollm LLM for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      llm,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// SupportsToolChoice reports whether the adapter supports a particular tool choice mode.
func (a *GollmAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required":
		return true
	case "named":
		return a.provider != "ollama"
	default:
		return false
	}
}

// translateRequest flattens a unified Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt strings.Builder
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt.WriteString(msg.TextContent())
			systemPrompt.WriteString("\n")
		case RoleUser:
			parts = append(parts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, call := range msg.ToolCalls() {
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s %s", call.ID, call.Name, string(call.Arguments)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result " + part.ToolResult.ToolCallID + "]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error " + part.ToolResult.ToolCallID + "]"
				}
				parts = append(parts, prefix+": "+part.ToolResult.Text())
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if s := strings.TrimSpace(systemPrompt.String()); s != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a unified Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	toolCalls, remaining := parseToolCalls(text)

	var contentParts []ContentPart
	if remaining != "" {
		contentParts = append(contentParts, TextPart(remaining))
	}
	for i := range toolCalls {
		contentParts = append(contentParts, ContentPart{Kind: ContentToolCall, ToolCall: &toolCalls[i]})
	}
	if len(contentParts) == 0 {
		contentParts = []ContentPart{TextPart(text)}
	}

	finishReason := FinishReason{Reason: "stop", Raw: "stop"}
	if len(toolCalls) > 0 {
		finishReason = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	input := estimateTokens(req)
	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: contentParts,
		},
		FinishReason: finishReason,
		Usage: Usage{
			// gollm does not expose usage; estimate from text length.
			InputTokens:  input,
			OutputTokens: len(text) / 4,
			TotalTokens:  input + len(text)/4,
		},
	}
}

var functionCallBlock = regexp.MustCompile(`(?s)<function_call>\s*(.*?)\s*</function_call>`)

type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseToolCalls extracts tool calls embedded in generated text and returns
// them along with the text that remains once the call markup is removed.
// Recognized shapes: <function_call>{...}</function_call> blocks, a
// {"tool_calls": [...]} object, or a bare [{"name": ...}] array.
func parseToolCalls(text string) ([]ToolCallData, string) {
	var calls []ToolCallData
	add := func(rc rawToolCall) {
		if rc.Name == "" {
			return
		}
		args := rc.Arguments
		// Some providers send arguments as a JSON-encoded string.
		var encoded string
		if json.Unmarshal(args, &encoded) == nil {
			args = json.RawMessage(encoded)
		}
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		calls = append(calls, ToolCallData{ID: rc.ID, Name: rc.Name, Arguments: args, Type: "function"})
	}

	if matches := functionCallBlock.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		for _, m := range matches {
			var rc rawToolCall
			if err := json.Unmarshal([]byte(m[1]), &rc); err == nil {
				add(rc)
			}
		}
		return calls, strings.TrimSpace(functionCallBlock.ReplaceAllString(text, ""))
	}

	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		var wrapper struct {
			ToolCalls []rawToolCall `json:"tool_calls"`
		}
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&wrapper); err == nil {
			for _, rc := range wrapper.ToolCalls {
				add(rc)
			}
			return calls, strings.TrimSpace(text[:start])
		}
	}

	if start := strings.Index(text, `[{"name"`); start != -1 {
		var list []rawToolCall
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&list); err == nil {
			for _, rc := range list {
				add(rc)
			}
			return calls, strings.TrimSpace(text[:start])
		}
	}

	return nil, strings.TrimSpace(text)
}

// translateError converts a gollm error into the unified error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	pe := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid key") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: pe(401, false)}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: pe(403, false)}
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return &NotFoundError{ProviderError: pe(404, false)}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: pe(429, true)}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: pe(413, false)}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: pe(500, true)}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection refused") || strings.Contains(msgLower, "no such host"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "content filter") || strings.Contains(msgLower, "safety"):
		return &ContentFilterError{ProviderError: pe(0, false)}
	default:
		p := pe(0, true)
		return &p
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}

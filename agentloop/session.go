package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/buildagent/unifiedllm"
)

// SessionPort is the conversation as seen by the loop. Each call is one LLM
// round trip.
type SessionPort interface {
	RequestResponses(ctx context.Context, content string) ([]Message, error)
	SendToolResults(ctx context.Context, results []ToolResult) ([]Message, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Provider     string
	Model        string
	SystemPrompt string
	Tools        *ToolRegistry
	Temperature  *float64
	MaxTokens    *int
	Logger       *slog.Logger
}

// Session holds the conversation history for one run and talks to the
// provider through a unifiedllm.Client. It never retries.
type Session struct {
	client  *unifiedllm.Client
	config  SessionConfig
	history []Turn
	logger  *slog.Logger
	mu      sync.Mutex
}

var _ SessionPort = (*Session)(nil)

// NewSession creates a Session bound to client.
func NewSession(client *unifiedllm.Client, config SessionConfig) *Session {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Tools == nil {
		config.Tools = NewToolRegistry()
	}
	return &Session{client: client, config: config, logger: logger}
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// RequestResponses appends content as a user turn and returns the model's
// next turn.
func (s *Session) RequestResponses(ctx context.Context, content string) ([]Message, error) {
	s.append(NewUserTurn(content))
	return s.complete(ctx)
}

// SendToolResults appends one batch of tool results and returns the model's
// next turn.
func (s *Session) SendToolResults(ctx context.Context, results []ToolResult) ([]Message, error) {
	s.append(NewToolResultsTurn(results))
	return s.complete(ctx)
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

func (s *Session) complete(ctx context.Context) ([]Message, error) {
	messages := append(
		[]unifiedllm.Message{unifiedllm.SystemMessage(s.config.SystemPrompt)},
		ConvertHistoryToMessages(s.History())...,
	)
	req := unifiedllm.Request{
		Model:       s.config.Model,
		Provider:    s.config.Provider,
		Messages:    messages,
		ToolDefs:    s.config.Tools.UnifiedDefinitions(),
		ToolChoice:  &unifiedllm.ToolChoice{Mode: "auto"},
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	}

	s.logger.Debug("llm request", "provider", s.config.Provider, "model", s.config.Model, "messages", len(messages))
	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	out, texts, calls := responseMessages(resp.Message.Content)
	s.append(NewAssistantTurn(strings.Join(texts, "\n"), calls, resp.Usage, resp.ID))
	s.logger.Debug("llm response",
		"response_id", resp.ID,
		"finish_reason", resp.FinishReason.Reason,
		"tool_calls", len(calls),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return out, nil
}

// responseMessages converts content parts to messages in their original
// order. Empty text fragments are dropped.
func responseMessages(parts []unifiedllm.ContentPart) ([]Message, []string, []ToolCall) {
	var raw []unifiedllm.ToolCall
	for _, part := range parts {
		if part.Kind == unifiedllm.ContentToolCall && part.ToolCall != nil {
			raw = append(raw, unifiedllm.ToolCall{ID: part.ToolCall.ID, Name: part.ToolCall.Name, Arguments: part.ToolCall.Arguments})
		}
	}
	calls := assignCallIDs(raw)

	var (
		out   []Message
		texts []string
		next  int
	)
	for _, part := range parts {
		switch part.Kind {
		case unifiedllm.ContentText:
			if text := stripMarkup(part.Text); text != "" {
				texts = append(texts, text)
				out = append(out, TextMessage(text))
			}
		case unifiedllm.ContentToolCall:
			if part.ToolCall == nil {
				continue
			}
			out = append(out, CallMessage(calls[next]))
			next++
		}
	}
	return out, texts, calls
}

// assignCallIDs gives every call a unique ID within the turn.
func assignCallIDs(calls []unifiedllm.ToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" || seen[id] {
			id = "call_" + uuid.NewString()
		}
		seen[id] = true
		out = append(out, ToolCall{ID: id, Name: c.Name, Arguments: c.Arguments})
	}
	return out
}

var markupStripper = strings.NewReplacer(
	"<thinking>", "",
	"</thinking>", "",
	"<response>", "",
	"</response>", "",
)

// stripMarkup removes provider formatting tags, keeping the enclosed text.
func stripMarkup(text string) string {
	return strings.TrimSpace(markupStripper.Replace(text))
}

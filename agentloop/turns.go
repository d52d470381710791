package agentloop

import (
	"time"

	"github.com/martinemde/buildagent/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
)

// Turn is a single entry in the conversation history.
type Turn struct {
	Kind        TurnKind         `json:"kind"`
	Timestamp   time.Time        `json:"timestamp"`
	User        *UserTurn        `json:"user,omitempty"`
	Assistant   *AssistantTurn   `json:"assistant,omitempty"`
	ToolResults *ToolResultsTurn `json:"tool_results,omitempty"`
}

// UserTurn holds user input.
type UserTurn struct {
	Content string `json:"content"`
}

// AssistantTurn holds the model's response after markup stripping.
type AssistantTurn struct {
	Content    string           `json:"content"`
	ToolCalls  []ToolCall       `json:"tool_calls,omitempty"`
	Usage      unifiedllm.Usage `json:"usage"`
	ResponseID string           `json:"response_id,omitempty"`
}

// ToolResultsTurn holds one batch of tool results.
type ToolResultsTurn struct {
	Results []ToolResult `json:"results"`
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(content string) Turn {
	return Turn{
		Kind:      TurnUser,
		Timestamp: time.Now(),
		User:      &UserTurn{Content: content},
	}
}

// NewAssistantTurn creates a Turn wrapping an assistant response.
func NewAssistantTurn(content string, toolCalls []ToolCall, usage unifiedllm.Usage, responseID string) Turn {
	return Turn{
		Kind:      TurnAssistant,
		Timestamp: time.Now(),
		Assistant: &AssistantTurn{
			Content:    content,
			ToolCalls:  toolCalls,
			Usage:      usage,
			ResponseID: responseID,
		},
	}
}

// NewToolResultsTurn creates a Turn wrapping tool results.
func NewToolResultsTurn(results []ToolResult) Turn {
	return Turn{
		Kind:        TurnToolResults,
		Timestamp:   time.Now(),
		ToolResults: &ToolResultsTurn{Results: results},
	}
}

// ConvertHistoryToMessages converts the turn-based history into LLM messages.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	var messages []unifiedllm.Message
	for _, turn := range history {
		switch turn.Kind {
		case TurnUser:
			if turn.User != nil {
				messages = append(messages, unifiedllm.UserMessage(turn.User.Content))
			}
		case TurnAssistant:
			if turn.Assistant != nil {
				msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
				if turn.Assistant.Content != "" {
					msg.Content = append(msg.Content, unifiedllm.TextPart(turn.Assistant.Content))
				}
				for _, tc := range turn.Assistant.ToolCalls {
					msg.Content = append(msg.Content,
						unifiedllm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
				}
				messages = append(messages, msg)
			}
		case TurnToolResults:
			if turn.ToolResults != nil {
				for _, r := range turn.ToolResults.Results {
					messages = append(messages,
						unifiedllm.ToolResultMessage(r.CallID, r.Name, r.Content, r.IsError))
				}
			}
		}
	}
	return messages
}

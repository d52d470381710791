package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/martinemde/buildagent/unifiedllm"
)

// ToolExecutor runs one tool. A Failure outcome and a returned error both
// reach the model as error results; only the error form is prefixed.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage, caps Capabilities) (Outcome, error)

// ToolDefinition describes a tool for the LLM.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex

	// CharLimits overrides DefaultToolCharLimits per tool name.
	CharLimits map[string]int
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// UnifiedDefinitions converts the registry to the definitions sent with
// every request.
func (r *ToolRegistry) UnifiedDefinitions() []unifiedllm.ToolDefinition {
	defs := r.Definitions()
	out := make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = unifiedllm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}

// Execute runs call and always returns a result correlated to it: lookup
// failures, executor errors and Failure outcomes become error results.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall, caps Capabilities) ToolResult {
	result := ToolResult{CallID: call.ID, Name: call.Name}

	registered := r.Get(call.Name)
	if registered == nil {
		result.Content = fmt.Sprintf("Unknown tool: %s", call.Name)
		result.IsError = true
		return result
	}

	out, err := registered.Executor(ctx, call.Arguments, caps)
	if err != nil {
		result.Content = fmt.Sprintf("Tool error (%s): %v", call.Name, err)
		result.IsError = true
		return result
	}

	result.Content = TruncateToolOutput(out.Detail, call.Name, r.CharLimits)
	result.IsError = !out.Success
	return result
}

// ParseToolArguments unmarshals tool call arguments into a map. Empty
// arguments parse as an empty map.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireStringArg(args map[string]interface{}, key string) (string, error) {
	s, ok := GetStringArg(args, key)
	if !ok {
		return "", fmt.Errorf("missing required string argument %q", key)
	}
	return s, nil
}

package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     *int     `json:"max_output,omitempty"`
	SupportsTools bool     `json:"supports_tools"`
	Aliases       []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int { return &v }

// Models is the built-in model catalog. The first entry per provider is the
// provider default.
var Models = []ModelInfo{
	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384), SupportsTools: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-opus-4-1", Provider: "anthropic", DisplayName: "Claude Opus 4.1",
		ContextWindow: 200000, MaxOutput: intPtr(32768), SupportsTools: true,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-3-5-haiku-latest", Provider: "anthropic", DisplayName: "Claude Haiku 3.5",
		ContextWindow: 200000, MaxOutput: intPtr(8192), SupportsTools: true,
		Aliases: []string{"haiku"},
	},

	// OpenAI
	{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: intPtr(16384), SupportsTools: true,
		Aliases: []string{"4o"},
	},
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: intPtr(16384), SupportsTools: true,
		Aliases: []string{"4o-mini"},
	},
	{
		ID: "gpt-4.1", Provider: "openai", DisplayName: "GPT-4.1",
		ContextWindow: 1047576, MaxOutput: intPtr(32768), SupportsTools: true,
	},

	// Ollama (local)
	{
		ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1 (local)",
		ContextWindow: 131072, SupportsTools: true,
	},
	{
		ID: "qwen2.5-coder", Provider: "ollama", DisplayName: "Qwen 2.5 Coder (local)",
		ContextWindow: 32768, SupportsTools: true,
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModel returns the default model for a provider, or nil when the
// provider has no catalog entries.
func DefaultModel(provider string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider == provider {
			return &Models[i]
		}
	}
	return nil
}

// ResolveModelID maps an alias to its canonical ID. Unknown names pass through.
func ResolveModelID(name string) string {
	if info := GetModelInfo(name); info != nil {
		return info.ID
	}
	return name
}

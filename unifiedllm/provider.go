package unifiedllm

import "context"

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic", "ollama").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// ToolChoiceSupporter is implemented by adapters that can report tool choice support.
type ToolChoiceSupporter interface {
	SupportsToolChoice(mode string) bool
}

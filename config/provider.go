package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/martinemde/buildagent/unifiedllm"
)

// ErrMissingCredentials is returned when no provider has usable credentials.
var ErrMissingCredentials = errors.New("missing provider credentials")

type providerInfo struct {
	envKey     string // "" when no key is needed
	defaultURL string
}

var providers = map[string]providerInfo{
	"anthropic":  {envKey: "ANTHROPIC_API_KEY"},
	"openai":     {envKey: "OPENAI_API_KEY"},
	"groq":       {envKey: "GROQ_API_KEY"},
	"mistral":    {envKey: "MISTRAL_API_KEY"},
	"deepseek":   {envKey: "DEEPSEEK_API_KEY"},
	"openrouter": {envKey: "OPENROUTER_API_KEY"},
	"ollama":     {defaultURL: "http://localhost:11434"},
}

// fallbackOrder is tried when no provider is configured.
var fallbackOrder = []string{"anthropic", "openai"}

// ProviderNames returns the supported provider names, sorted.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolved is a provider selection with everything needed to build a client.
type Resolved struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// LogValue keeps the key out of structured logs.
func (r Resolved) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", r.Provider),
		slog.String("model", r.Model),
		slog.String("base_url", r.BaseURL),
		slog.Bool("api_key_set", r.APIKey != ""),
	)
}

// Resolve picks the provider, model and credentials. With no provider
// configured, the first provider in the fallback chain that has credentials
// in the environment wins.
func (c Config) Resolve(lookup func(string) (string, bool)) (Resolved, error) {
	if err := c.Validate(); err != nil {
		return Resolved{}, err
	}

	if c.Provider != "" {
		return c.resolveProvider(c.Provider, lookup)
	}

	for _, name := range fallbackOrder {
		r, err := c.resolveProvider(name, lookup)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrMissingCredentials) {
			return Resolved{}, err
		}
	}
	return Resolved{}, fmt.Errorf("%w: set provider in the config or export one of %s",
		ErrMissingCredentials, envKeysFor(fallbackOrder))
}

func (c Config) resolveProvider(name string, lookup func(string) (string, bool)) (Resolved, error) {
	info := providers[name]
	r := Resolved{Provider: name, BaseURL: c.BaseURL}

	if info.envKey != "" {
		r.APIKey = c.APIKey
		if r.APIKey == "" {
			if v, ok := lookup(info.envKey); ok {
				r.APIKey = v
			}
		}
		if r.APIKey == "" {
			return Resolved{}, fmt.Errorf("%w: provider %s needs %s", ErrMissingCredentials, name, info.envKey)
		}
	}
	if r.BaseURL == "" {
		r.BaseURL = info.defaultURL
	}

	r.Model = unifiedllm.ResolveModelID(c.Model)
	if r.Model == "" {
		m := unifiedllm.DefaultModel(name)
		if m == nil {
			return Resolved{}, fmt.Errorf("provider %s has no default model; set model explicitly", name)
		}
		r.Model = m.ID
	}
	return r, nil
}

func envKeysFor(names []string) string {
	var keys []string
	for _, name := range names {
		if k := providers[name].envKey; k != "" {
			keys = append(keys, k)
		}
	}
	return strings.Join(keys, " or ")
}

// NewClient builds a client bound to the resolved provider. OpenAI goes
// through the native adapter; everything else goes through gollm.
func (c Config) NewClient(r Resolved) (*unifiedllm.Client, error) {
	var adapter unifiedllm.ProviderAdapter
	switch r.Provider {
	case "openai":
		opts := []unifiedllm.OpenAIOption{unifiedllm.WithOpenAIModel(r.Model)}
		if r.BaseURL != "" {
			opts = append(opts, unifiedllm.WithOpenAIBaseURL(r.BaseURL))
		}
		if c.MaxTokens > 0 {
			opts = append(opts, unifiedllm.WithOpenAIMaxTokens(c.MaxTokens))
		}
		if c.Temperature != nil {
			opts = append(opts, unifiedllm.WithOpenAITemperature(*c.Temperature))
		}
		adapter = unifiedllm.NewOpenAIAdapter(r.APIKey, opts...)
	default:
		opts := []unifiedllm.GollmAdapterOption{unifiedllm.WithModel(r.Model)}
		if c.MaxTokens > 0 {
			opts = append(opts, unifiedllm.WithMaxTokens(c.MaxTokens))
		}
		if c.Temperature != nil {
			opts = append(opts, unifiedllm.WithTemperature(*c.Temperature))
		}
		if r.Provider == "ollama" && r.BaseURL != "" {
			opts = append(opts, unifiedllm.WithEndpoint(r.BaseURL))
		}
		a, err := unifiedllm.NewGollmAdapter(r.Provider, r.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		adapter = a
	}

	clientOpts := []unifiedllm.ClientOption{
		unifiedllm.WithProvider(r.Provider, adapter),
		unifiedllm.WithDefaultProvider(r.Provider),
	}
	if c.Retry.MaxRetries > 0 {
		policy := unifiedllm.DefaultRetryPolicy()
		policy.MaxRetries = c.Retry.MaxRetries
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			slog.Warn("retrying provider request", "provider", r.Provider, "attempt", attempt, "delay", delay, "error", err)
		}
		clientOpts = append(clientOpts, unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(policy)))
	}
	return unifiedllm.NewClient(clientOpts...), nil
}

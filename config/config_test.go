package config

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinemde/buildagent/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: anthropic
model: opus
max_iterations: 12
build_tool: gradle
task_timeout: 10m
temperature: 0.1
retry:
  max_retries: 3
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "opus", cfg.Model)
	assert.Equal(t, 12, cfg.MaxIterations)
	assert.Equal(t, "gradle", cfg.BuildTool)
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.1, *cfg.Temperature, 1e-9)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 4096, cfg.MaxTokens, "defaults survive when the file omits a field")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("provider: [unterminated"), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestLoadFindsProjectFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("provider: ollama\n"), 0o644))
	t.Setenv("BUILDAGENT_PROVIDER", "")
	t.Setenv("BUILDAGENT_MODEL", "qwen2.5-coder")

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "qwen2.5-coder", cfg.Model)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.MaxTokens)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"BUILDAGENT_PROVIDER":       "openai",
		"BUILDAGENT_MODEL":          "gpt-4.1",
		"BUILDAGENT_MAX_ITERATIONS": "7",
		"BUILDAGENT_BUILD_TOOL":     "make",
	}))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4.1", cfg.Model)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "make", cfg.BuildTool)

	err = cfg.ApplyEnv(envMap(map[string]string{"BUILDAGENT_MAX_ITERATIONS": "many"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Default(), false},
		{"known provider", Config{Provider: "groq"}, false},
		{"unknown provider", Config{Provider: "bedrock"}, true},
		{"negative iterations", Config{MaxIterations: -1}, true},
		{"negative timeout", Config{TaskTimeout: -time.Second}, true},
		{"negative retries", Config{Retry: RetryConfig{MaxRetries: -2}}, true},
		{"unknown build tool", Config{BuildTool: "bazel"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStringRedactsAPIKey(t *testing.T) {
	cfg := Config{Provider: "openai", APIKey: "sk-abcdefghijklmnop"}
	s := cfg.String()
	assert.NotContains(t, s, "abcdefghijklmnop")
	assert.Contains(t, s, "sk-a****")
	assert.Contains(t, s, "provider: openai")

	short := Config{APIKey: "abc"}
	assert.NotContains(t, short.String(), "abc")
	assert.Contains(t, short.String(), "****")
}

func TestResolveExplicitProvider(t *testing.T) {
	cfg := Config{Provider: "openai", Model: "4o-mini"}
	r, err := cfg.Resolve(envMap(map[string]string{"OPENAI_API_KEY": "sk-env"}))
	require.NoError(t, err)
	assert.Equal(t, Resolved{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-env"}, r)
}

func TestResolveConfigKeyWinsOverEnv(t *testing.T) {
	cfg := Config{Provider: "anthropic", APIKey: "from-config"}
	r, err := cfg.Resolve(envMap(map[string]string{"ANTHROPIC_API_KEY": "from-env"}))
	require.NoError(t, err)
	assert.Equal(t, "from-config", r.APIKey)
	assert.Equal(t, "claude-sonnet-4-5", r.Model)
}

func TestResolveFallbackChain(t *testing.T) {
	r, err := Config{}.Resolve(envMap(map[string]string{
		"ANTHROPIC_API_KEY": "ak",
		"OPENAI_API_KEY":    "ok",
	}))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", r.Provider)

	r, err = Config{}.Resolve(envMap(map[string]string{"OPENAI_API_KEY": "ok"}))
	require.NoError(t, err)
	assert.Equal(t, "openai", r.Provider)
	assert.Equal(t, "gpt-4o", r.Model)
}

func TestResolveMissingCredentials(t *testing.T) {
	_, err := Config{}.Resolve(envMap(nil))
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY or OPENAI_API_KEY")

	_, err = Config{Provider: "groq", Model: "llama-3.1-70b"}.Resolve(envMap(nil))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestResolveOllamaNeedsNoKey(t *testing.T) {
	r, err := Config{Provider: "ollama"}.Resolve(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", r.Model)
	assert.Equal(t, "http://localhost:11434", r.BaseURL)
	assert.Empty(t, r.APIKey)
}

func TestResolveRequiresModelWithoutCatalogDefault(t *testing.T) {
	_, err := Config{Provider: "mistral"}.Resolve(envMap(map[string]string{"MISTRAL_API_KEY": "k"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingCredentials)
}

func TestResolveRejectsInvalidConfig(t *testing.T) {
	_, err := Config{Provider: "bedrock"}.Resolve(envMap(nil))
	assert.Error(t, err)
}

func TestNewClientOpenAI(t *testing.T) {
	cfg := Config{Retry: RetryConfig{MaxRetries: 2}}
	client, err := cfg.NewClient(Resolved{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai", client.DefaultProvider())
	assert.Equal(t, []string{"openai"}, client.Providers())
}

func TestNewClientOpenAISendsSamplingSettings(t *testing.T) {
	var sent map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &sent)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "c", "model": "gpt-4o", "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ok"}}]}`)
	}))
	t.Cleanup(srv.Close)

	temp := 0.1
	cfg := Config{MaxTokens: 123, Temperature: &temp}
	client, err := cfg.NewClient(Resolved{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Complete(context.Background(), unifiedllm.Request{
		Provider: "openai",
		Model:    "gpt-4o",
		Messages: []unifiedllm.Message{unifiedllm.UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 123, sent["max_completion_tokens"])
	assert.InDelta(t, 0.1, sent["temperature"], 1e-6)
}

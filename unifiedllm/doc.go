// Package unifiedllm is the provider boundary of the build agent. It presents
// a provider-agnostic request/response model so the agent loop never sees
// vendor SDK types.
//
// # Architecture
//
//   - ProviderAdapter: the contract each backend implements (Complete).
//   - Client: routes a Request to the adapter named by Request.Provider (or
//     the default provider) and applies middleware around the call.
//   - Adapters: OpenAIAdapter (github.com/sashabaranov/go-openai, native tool
//     calls), GollmAdapter (github.com/teilomillet/gollm, anthropic, ollama and
//     the other gollm providers) and ScriptedAdapter for deterministic tests.
//   - Errors: a typed hierarchy (AuthenticationError, RateLimitError, ...) with
//     IsRetryable for callers that choose to retry.
//
// # Usage
//
//	adapter := unifiedllm.NewOpenAIAdapter(os.Getenv("OPENAI_API_KEY"))
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter))
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "gpt-4o",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// Retries are opt-in. The agent loop treats every provider error as fatal, so
// a client only retries when built with RetryMiddleware.
package unifiedllm

package llm

import (
	"context"
	"strings"
)

// Provider tags the built-in and registrable LLM backends.
type Provider string

const (
	ProviderOpenAI           Provider = "OPENAI"
	ProviderAnthropic        Provider = "ANTHROPIC"
	ProviderGoogle           Provider = "GOOGLE"
	ProviderDeepSeek         Provider = "DEEPSEEK"
	ProviderOllama           Provider = "OLLAMA"
	ProviderOpenRouter       Provider = "OPENROUTER"
	ProviderGLM              Provider = "GLM"
	ProviderQwen             Provider = "QWEN"
	ProviderKimi             Provider = "KIMI"
	ProviderMiniMax          Provider = "MINIMAX"
	ProviderCustomOpenAIBase Provider = "CUSTOM_OPENAI_BASE"
	ProviderCopilot          Provider = "GITHUB_COPILOT"
	ProviderMock             Provider = "MOCK"
)

// ParseProvider normalizes a provider tag.
func ParseProvider(value string) Provider {
	return Provider(strings.ToUpper(strings.TrimSpace(value)))
}

// NamedModelConfig selects one provider+model combination.
type NamedModelConfig struct {
	Name     string `yaml:"name" json:"name"`
	Provider string `yaml:"provider" json:"provider"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	Model    string `yaml:"model" json:"model"`
}

// Message is one entry of a chat prompt.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request contains everything one completion needs. Tools stays empty in the
// text-based protocol; the tool semantics ride inside message text.
type Request struct {
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

// NativeToolCall is a provider-side function call, surfaced when a caller
// does pass native tools.
type NativeToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response is the aggregated completion.
type Response struct {
	Content    string           `json:"content"`
	StopReason string           `json:"stop_reason"`
	ToolCalls  []NativeToolCall `json:"tool_calls,omitempty"`
}

// StreamCallbacks captures optional hooks invoked while streaming. Nil
// functions are ignored.
type StreamCallbacks struct {
	// OnDelta receives each appended content fragment; final=true marks the
	// end of the stream (with an empty delta).
	OnDelta func(delta string, final bool)
	// OnNativeToolCall receives provider-side function calls as they complete.
	OnNativeToolCall func(call NativeToolCall)
}

// Executor sends chat requests to one configured model.
type Executor interface {
	Model() string
	Complete(ctx context.Context, req Request) (*Response, error)
	StreamComplete(ctx context.Context, req Request, callbacks StreamCallbacks) (*Response, error)
}

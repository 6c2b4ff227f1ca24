package llm

import (
	"strings"

	coorderrors "routa/internal/shared/errors"
)

// NormalizeBaseURL guarantees the trailing slash that downstream URL joining
// depends on: without it the last path segment would be replaced.
func NormalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return ""
	}
	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}
	return trimmed
}

// defaultBaseURLs maps built-in OpenAI-compatible providers to their default
// endpoints. Every entry ends with "/".
var defaultBaseURLs = map[Provider]string{
	ProviderOpenAI:     "https://api.openai.com/v1/",
	ProviderAnthropic:  "https://api.anthropic.com/v1/",
	ProviderGoogle:     "https://generativelanguage.googleapis.com/v1beta/openai/",
	ProviderDeepSeek:   "https://api.deepseek.com/v1/",
	ProviderOllama:     "http://localhost:11434/v1/",
	ProviderOpenRouter: "https://openrouter.ai/api/v1/",
	ProviderGLM:        "https://open.bigmodel.cn/api/paas/v4/",
	ProviderQwen:       "https://dashscope.aliyuncs.com/compatible-mode/v1/",
	ProviderKimi:       "https://api.moonshot.cn/v1/",
	ProviderMiniMax:    "https://api.minimax.chat/v1/",
}

// GetDefaultBaseURL returns the default endpoint for a built-in provider.
func GetDefaultBaseURL(provider Provider) string {
	return defaultBaseURLs[provider]
}

// CreateExecutor selects an executor for the named configuration: a
// registered provider handler wins; otherwise the provider tag dispatches to
// a built-in OpenAI-compatible builder.
func CreateExecutor(cfg NamedModelConfig) (Executor, error) {
	provider := ParseProvider(cfg.Provider)

	if handler, ok := LookupProvider(provider); ok {
		if !handler.IsAvailable() {
			return nil, coorderrors.New(coorderrors.KindProviderUnavailable,
				"provider %s is registered but unavailable; check its local setup", provider)
		}
		executor, err := handler.CreateExecutor(cfg)
		if err != nil {
			return nil, err
		}
		if executor == nil {
			return nil, coorderrors.New(coorderrors.KindProviderUnavailable,
				"provider %s returned no executor", provider)
		}
		return executor, nil
	}

	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderDeepSeek,
		ProviderOllama, ProviderOpenRouter, ProviderGLM, ProviderQwen,
		ProviderKimi, ProviderMiniMax:
		baseURL := cfg.BaseURL
		if strings.TrimSpace(baseURL) == "" {
			baseURL = defaultBaseURLs[provider]
		}
		return NewOpenAIExecutor(cfg.Model, ClientConfig{
			APIKey:  cfg.APIKey,
			BaseURL: NormalizeBaseURL(baseURL),
		})
	case ProviderCustomOpenAIBase:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, coorderrors.BadInput("provider CUSTOM_OPENAI_BASE requires an explicit base URL")
		}
		return NewOpenAIExecutor(cfg.Model, ClientConfig{
			APIKey:  cfg.APIKey,
			BaseURL: NormalizeBaseURL(cfg.BaseURL),
		})
	case ProviderMock:
		return NewMockExecutor(cfg.Model), nil
	}

	return nil, coorderrors.BadInput("unknown provider: %s", cfg.Provider)
}

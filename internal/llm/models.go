package llm

import (
	"strings"
	"sync/atomic"
)

// Capability describes what a model supports.
type Capability string

const (
	CapCompletion      Capability = "Completion"
	CapTemperature     Capability = "Temperature"
	CapTools           Capability = "Tools"
	CapToolChoice      Capability = "ToolChoice"
	CapVisionImage     Capability = "Vision.Image"
	CapVisionVideo     Capability = "Vision.Video"
	CapAudio           Capability = "Audio"
	CapDocument        Capability = "Document"
	CapMultipleChoices Capability = "MultipleChoices"
	CapSpeculation     Capability = "Speculation"
	CapEmbed           Capability = "Embed"
)

// ModelInfo is the resolved metadata for one model id.
type ModelInfo struct {
	Provider        Provider     `json:"provider"`
	ID              string       `json:"id"`
	Capabilities    []Capability `json:"capabilities"`
	ContextLength   int          `json:"context_length"`
	MaxOutputTokens int          `json:"max_output_tokens,omitempty"`
}

// HasCapability reports whether the model carries cap.
func (m ModelInfo) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// defaultContextLength is the fallback for unknown model names; configurable
// because deployments pin wildly different local models.
var defaultContextLength atomic.Int64

func init() {
	defaultContextLength.Store(128_000)
}

// SetDefaultContextLength overrides the fallback context length for unknown
// models.
func SetDefaultContextLength(length int) {
	if length > 0 {
		defaultContextLength.Store(int64(length))
	}
}

var fullCaps = []Capability{
	CapCompletion, CapTemperature, CapTools, CapToolChoice, CapVisionImage, CapDocument,
}

var textToolCaps = []Capability{
	CapCompletion, CapTemperature, CapTools, CapToolChoice,
}

// modelRule resolves model metadata from a name substring. First match wins.
type modelRule struct {
	substrings      []string
	capabilities    []Capability
	contextLength   int
	maxOutputTokens int
}

var modelRules = []modelRule{
	{[]string{"o1", "o3", "o4-mini"}, textToolCaps, 200_000, 100_000},
	{[]string{"gpt-4.1"}, fullCaps, 1_047_576, 32_768},
	{[]string{"gpt-4o"}, fullCaps, 128_000, 16_384},
	{[]string{"gpt-5"}, fullCaps, 400_000, 128_000},
	{[]string{"claude-3-5"}, fullCaps, 200_000, 8_192},
	{[]string{"claude-3-7", "claude-sonnet-4", "claude-opus-4", "claude-haiku-4"}, fullCaps, 200_000, 64_000},
	{[]string{"gemini-2.5", "gemini-2.0"}, append(append([]Capability(nil), fullCaps...), CapVisionVideo, CapAudio), 1_048_576, 65_536},
	{[]string{"deepseek-chat", "deepseek-v3"}, textToolCaps, 65_536, 8_192},
	{[]string{"deepseek-reasoner", "deepseek-r1"}, []Capability{CapCompletion}, 65_536, 65_536},
	{[]string{"glm-4"}, textToolCaps, 128_000, 16_384},
	{[]string{"qwen3", "qwen-max"}, textToolCaps, 131_072, 16_384},
	{[]string{"kimi-k2", "moonshot"}, textToolCaps, 131_072, 16_384},
	{[]string{"minimax"}, textToolCaps, 245_760, 16_384},
	{[]string{"llama", "mistral", "gemma", "phi-"}, []Capability{CapCompletion, CapTemperature, CapTools}, 32_768, 0},
	{[]string{"embedding", "embed"}, []Capability{CapEmbed}, 8_192, 0},
}

// CreateModel resolves metadata for a provider+name pair. Unknown names fall
// back to a generic Completion+Temperature model with the configurable
// default context length. The returned Provider always honors the provider
// argument.
func CreateModel(provider Provider, name string) ModelInfo {
	lowered := strings.ToLower(name)
	for _, rule := range modelRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lowered, sub) {
				return ModelInfo{
					Provider:        provider,
					ID:              name,
					Capabilities:    append([]Capability(nil), rule.capabilities...),
					ContextLength:   rule.contextLength,
					MaxOutputTokens: rule.maxOutputTokens,
				}
			}
		}
	}
	return ModelInfo{
		Provider:      provider,
		ID:            name,
		Capabilities:  []Capability{CapCompletion, CapTemperature},
		ContextLength: int(defaultContextLength.Load()),
	}
}

// knownModels lists the model ids surfaced per built-in provider.
var knownModels = map[Provider][]string{
	ProviderOpenAI:     {"gpt-4.1", "gpt-4.1-mini", "gpt-4o", "gpt-4o-mini", "o3", "o4-mini"},
	ProviderAnthropic:  {"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest", "claude-sonnet-4-20250514", "claude-opus-4-20250514"},
	ProviderGoogle:     {"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"},
	ProviderDeepSeek:   {"deepseek-chat", "deepseek-reasoner"},
	ProviderOllama:     {"llama3.3", "qwen3", "mistral", "gemma3"},
	ProviderOpenRouter: {"openai/gpt-4.1", "anthropic/claude-3.5-sonnet", "deepseek/deepseek-chat"},
	ProviderGLM:        {"glm-4-plus", "glm-4-flash"},
	ProviderQwen:       {"qwen-max", "qwen3-235b-a22b"},
	ProviderKimi:       {"kimi-k2-0711-preview", "moonshot-v1-128k"},
	ProviderMiniMax:    {"minimax-text-01", "abab6.5s-chat"},
}

// GetAvailableModels resolves the known catalog for a built-in provider. A
// registered provider handler overrides the static table.
func GetAvailableModels(provider Provider) []ModelInfo {
	if handler, ok := LookupProvider(provider); ok {
		return handler.AvailableModels()
	}
	names := knownModels[provider]
	models := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		models = append(models, CreateModel(provider, name))
	}
	return models
}

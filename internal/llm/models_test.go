package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateModelKnownFamilies(t *testing.T) {
	cases := []struct {
		name      string
		context   int
		maxOutput int
	}{
		{"o3", 200_000, 100_000},
		{"o4-mini", 200_000, 100_000},
		{"gpt-4.1", 1_047_576, 32_768},
		{"claude-3-5-sonnet-latest", 200_000, 8_192},
		{"gemini-2.5-pro", 1_048_576, 65_536},
		{"deepseek-chat", 65_536, 8_192},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := CreateModel(ProviderOpenAI, tc.name)
			assert.Equal(t, tc.context, model.ContextLength)
			assert.Equal(t, tc.maxOutput, model.MaxOutputTokens)
			assert.True(t, model.HasCapability(CapCompletion))
		})
	}
}

func TestCreateModelHonorsProviderArgument(t *testing.T) {
	model := CreateModel(ProviderAnthropic, "claude-3-5-sonnet-latest")
	assert.Equal(t, ProviderAnthropic, model.Provider)

	generic := CreateModel(ProviderDeepSeek, "totally-unknown-model")
	assert.Equal(t, ProviderDeepSeek, generic.Provider)
}

func TestCreateModelUnknownFallback(t *testing.T) {
	model := CreateModel(ProviderOllama, "my-local-finetune")
	assert.Equal(t, []Capability{CapCompletion, CapTemperature}, model.Capabilities)
	assert.Equal(t, 128_000, model.ContextLength)
	assert.Zero(t, model.MaxOutputTokens)
}

func TestSetDefaultContextLength(t *testing.T) {
	t.Cleanup(func() { SetDefaultContextLength(128_000) })
	SetDefaultContextLength(4_096)
	model := CreateModel(ProviderOllama, "tiny-model")
	assert.Equal(t, 4_096, model.ContextLength)
}

func TestGetAvailableModels(t *testing.T) {
	models := GetAvailableModels(ProviderOpenAI)
	require.NotEmpty(t, models)
	for _, model := range models {
		assert.Equal(t, ProviderOpenAI, model.Provider)
		assert.NotEmpty(t, model.ID)
		assert.Positive(t, model.ContextLength)
	}
}

func TestGetAvailableModelsPrefersRegisteredHandler(t *testing.T) {
	t.Cleanup(ClearProviders)
	RegisterProvider(ProviderOpenAI, &staticHandler{models: []ModelInfo{{Provider: ProviderOpenAI, ID: "custom"}}})
	models := GetAvailableModels(ProviderOpenAI)
	require.Len(t, models, 1)
	assert.Equal(t, "custom", models[0].ID)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderFromModel(t *testing.T) {
	cases := map[string]Provider{
		"gemini-1.5-flash":       ProviderGemini,
		"deepseek-chat":          ProviderDeepSeek,
		"gpt-4o-mini":            ProviderOpenAI,
		"claude-3-opus-20240229": ProviderAnthropic,
		"anthropic.claude-v2":    ProviderAnthropic,
		"qwen-max":               ProviderQianwen,
		"moonshot-v1-32k":        ProviderKimi,
		"kimi-latest":            ProviderKimi,
		"llama-2":                ProviderUnknown,
		"":                       ProviderUnknown,
		"GPT-4o":                 ProviderUnknown, // matching is case-sensitive
	}

	for model, want := range cases {
		assert.Equal(t, want, ProviderFromModel(model), model)
	}
}

func TestSupportsDocuments(t *testing.T) {
	assert.True(t, ProviderKimi.SupportsDocuments())

	for _, p := range []Provider{ProviderGemini, ProviderDeepSeek, ProviderOpenAI, ProviderAnthropic, ProviderQianwen, ProviderUnknown} {
		assert.False(t, p.SupportsDocuments(), string(p))
	}
}

func TestCredentialKey(t *testing.T) {
	assert.Equal(t, "kimi_api_key", ProviderKimi.CredentialKey())
	assert.Equal(t, "openai_api_key", ProviderOpenAI.CredentialKey())
	assert.Empty(t, ProviderUnknown.CredentialKey())
}

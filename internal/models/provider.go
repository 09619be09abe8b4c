package models

import "strings"

// Provider identifies which language-model back end serves a character.
// It is resolved from the model identifier once, when a character is
// created or edited, so dispatch never re-parses strings per message.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderQianwen   Provider = "qianwen"
	ProviderKimi      Provider = "kimi"
	ProviderUnknown   Provider = ""
)

// ProviderFromModel maps a model identifier to its provider. Matching is
// ordered and first-match-wins: prefix tags for most families, a substring
// match for Claude models (vendors embed "claude" mid-string).
func ProviderFromModel(model string) Provider {
	switch {
	case strings.HasPrefix(model, "gemini"):
		return ProviderGemini
	case strings.HasPrefix(model, "deepseek"):
		return ProviderDeepSeek
	case strings.HasPrefix(model, "gpt"):
		return ProviderOpenAI
	case strings.Contains(model, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "qwen"):
		return ProviderQianwen
	case strings.HasPrefix(model, "moonshot") || strings.HasPrefix(model, "kimi"):
		return ProviderKimi
	default:
		return ProviderUnknown
	}
}

// SupportsDocuments reports whether the provider accepts pre-uploaded
// reference files for grounded generation. Only Kimi/Moonshot does.
func (p Provider) SupportsDocuments() bool {
	return p == ProviderKimi
}

// CredentialKey returns the secrets-manager key holding this provider's
// API credential.
func (p Provider) CredentialKey() string {
	switch p {
	case ProviderGemini:
		return "gemini_api_key"
	case ProviderDeepSeek:
		return "deepseek_api_key"
	case ProviderOpenAI:
		return "openai_api_key"
	case ProviderAnthropic:
		return "anthropic_api_key"
	case ProviderQianwen:
		return "qianwen_api_key"
	case ProviderKimi:
		return "kimi_api_key"
	default:
		return ""
	}
}

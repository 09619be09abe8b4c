package secrets

import (
	"context"

	"fiddle-chat/agent/internal/models"
)

// Manager provides access to provider API credentials. Credential
// storage itself lives outside the agent (Vault or the environment); the
// dispatch pipeline only consumes a presence check and the opaque value.
type Manager interface {
	// Credential returns the API credential for a provider
	Credential(ctx context.Context, provider models.Provider) (string, error)

	// Has reports synchronously whether a credential is configured for
	// the provider. It must not block on network I/O.
	Has(provider models.Provider) bool
}

// Availability reports which providers have a configured credential.
type Availability struct {
	Gemini    bool `json:"gemini"`
	DeepSeek  bool `json:"deepseek"`
	OpenAI    bool `json:"openai"`
	Anthropic bool `json:"anthropic"`
	Qianwen   bool `json:"qianwen"`
	Kimi      bool `json:"kimi"`
	Any       bool `json:"any_available"`
}

// CheckAvailability reports which providers have a credential configured.
func CheckAvailability(m Manager) Availability {
	a := Availability{
		Gemini:    m.Has(models.ProviderGemini),
		DeepSeek:  m.Has(models.ProviderDeepSeek),
		OpenAI:    m.Has(models.ProviderOpenAI),
		Anthropic: m.Has(models.ProviderAnthropic),
		Qianwen:   m.Has(models.ProviderQianwen),
		Kimi:      m.Has(models.ProviderKimi),
	}
	a.Any = a.Gemini || a.DeepSeek || a.OpenAI || a.Anthropic || a.Qianwen || a.Kimi
	return a
}

// Error represents a secrets management error
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

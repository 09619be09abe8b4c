package llm

import (
	"net/http"

	"fiddle-chat/agent/internal/models"
)

// Registry holds one adapter per provider and resolves model
// identifiers to adapters. Resolution itself does no network I/O and
// cannot fail except by reporting ErrUnsupportedModel.
type Registry struct {
	adapters map[models.Provider]Adapter
}

// NewRegistry builds a registry with all six adapters sharing one HTTP
// client. A nil client selects the default 30s-timeout client.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = defaultHTTPClient()
	}
	r := &Registry{adapters: make(map[models.Provider]Adapter)}
	r.register(NewGeminiAdapter(client))
	r.register(NewDeepSeekAdapter(client))
	r.register(NewOpenAIAdapter(client))
	r.register(NewAnthropicAdapter(client))
	r.register(NewQianwenAdapter(client))
	r.register(NewKimiAdapter(client))
	return r
}

func (r *Registry) register(a Adapter) {
	r.adapters[a.Provider()] = a
}

// Route resolves a model identifier to its adapter. Callers must treat
// ErrUnsupportedModel as terminal: surface UnsupportedReply and call no
// adapter.
func (r *Registry) Route(model string) (Adapter, error) {
	p := models.ProviderFromModel(model)
	if p == models.ProviderUnknown {
		return nil, ErrUnsupportedModel
	}
	a, ok := r.adapters[p]
	if !ok {
		return nil, ErrUnsupportedModel
	}
	return a, nil
}

// Adapter returns the adapter for an already-resolved provider tag.
func (r *Registry) Adapter(p models.Provider) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

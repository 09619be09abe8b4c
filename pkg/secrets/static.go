package secrets

import (
	"context"

	"fiddle-chat/agent/internal/models"
)

// StaticManager serves credentials from a fixed map. Used in tests and
// in single-tenant deployments where keys arrive via config.
type StaticManager struct {
	Keys map[models.Provider]string
}

func NewStaticManager(keys map[models.Provider]string) *StaticManager {
	if keys == nil {
		keys = make(map[models.Provider]string)
	}
	return &StaticManager{Keys: keys}
}

func (m *StaticManager) Credential(_ context.Context, provider models.Provider) (string, error) {
	v, ok := m.Keys[provider]
	if !ok || v == "" {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m *StaticManager) Has(provider models.Provider) bool {
	return m.Keys[provider] != ""
}

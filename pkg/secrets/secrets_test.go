package secrets

import (
	"context"
	"testing"

	"fiddle-chat/agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticManagerCredential(t *testing.T) {
	m := NewStaticManager(map[models.Provider]string{
		models.ProviderOpenAI: "sk-test",
	})

	cred, err := m.Credential(context.Background(), models.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cred)

	_, err = m.Credential(context.Background(), models.ProviderKimi)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestCheckAvailability(t *testing.T) {
	m := NewStaticManager(map[models.Provider]string{
		models.ProviderOpenAI:    "sk-test",
		models.ProviderAnthropic: "ak-test",
	})

	avail := CheckAvailability(m)
	assert.True(t, avail.OpenAI)
	assert.True(t, avail.Anthropic)
	assert.False(t, avail.Gemini)
	assert.False(t, avail.DeepSeek)
	assert.False(t, avail.Qianwen)
	assert.False(t, avail.Kimi)
}

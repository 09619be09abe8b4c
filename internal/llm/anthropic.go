package llm

import (
	"context"
	"errors"
	"net/http"

	"fiddle-chat/agent/internal/models"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicAdapter speaks the Anthropic messages API. Authentication
// uses the x-api-key header rather than a bearer token, and the system
// prompt is a top-level field instead of a message.
type AnthropicAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewAnthropicAdapter(client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{BaseURL: anthropicDefaultBaseURL, client: client}
}

func (a *AnthropicAdapter) Provider() models.Provider { return models.ProviderAnthropic }

type anthropicRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (a *AnthropicAdapter) Generate(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{
		Model:     req.Model,
		System:    req.SystemPrompt,
		Messages:  historyMessages(req.History),
		MaxTokens: 800,
	}

	headers := map[string]string{
		"x-api-key":         req.Credential,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, a.client, a.BaseURL+"/messages", headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Content) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Content[0].Text, nil
}

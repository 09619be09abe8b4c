package llm

import (
	"context"
	"errors"
	"net/http"

	"fiddle-chat/agent/internal/models"
)

const deepSeekDefaultBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter speaks DeepSeek's OpenAI-compatible chat API.
type DeepSeekAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewDeepSeekAdapter(client *http.Client) *DeepSeekAdapter {
	return &DeepSeekAdapter{BaseURL: deepSeekDefaultBaseURL, client: client}
}

func (a *DeepSeekAdapter) Provider() models.Provider { return models.ProviderDeepSeek }

func (a *DeepSeekAdapter) Generate(ctx context.Context, req Request) (string, error) {
	messages := append([]chatMessage{{Role: "system", Content: req.SystemPrompt}}, historyMessages(req.History)...)

	body := chatCompletionsRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   800,
	}

	var resp chatCompletionsResponse
	err := postJSON(ctx, a.client, a.BaseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + req.Credential}, body, &resp)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}

package llm

import (
	"context"
	"errors"
	"net/http"

	"fiddle-chat/agent/internal/models"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter speaks the OpenAI chat-completions API.
type OpenAIAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewOpenAIAdapter(client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{BaseURL: openAIDefaultBaseURL, client: client}
}

func (a *OpenAIAdapter) Provider() models.Provider { return models.ProviderOpenAI }

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *OpenAIAdapter) Generate(ctx context.Context, req Request) (string, error) {
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

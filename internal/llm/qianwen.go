package llm

import (
	"context"
	"errors"
	"net/http"

	"fiddle-chat/agent/internal/models"
)

const qianwenDefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"

// QianwenAdapter speaks the DashScope text-generation API. Messages are
// wrapped in an input object, tuning knobs in a parameters object, and
// the reply text lives at output.text.
type QianwenAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewQianwenAdapter(client *http.Client) *QianwenAdapter {
	return &QianwenAdapter{BaseURL: qianwenDefaultBaseURL, client: client}
}

func (a *QianwenAdapter) Provider() models.Provider { return models.ProviderQianwen }

type qianwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []chatMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
	} `json:"parameters"`
}

type qianwenResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
}

func (a *QianwenAdapter) Generate(ctx context.Context, req Request) (string, error) {
	body := qianwenRequest{Model: req.Model}
	body.Input.Messages = append([]chatMessage{{Role: "system", Content: req.SystemPrompt}}, historyMessages(req.History)...)
	body.Parameters.Temperature = 0.7
	body.Parameters.MaxTokens = 800

	var resp qianwenResponse
	err := postJSON(ctx, a.client, a.BaseURL+"/services/aigc/text-generation/generation",
		map[string]string{"Authorization": "Bearer " + req.Credential}, body, &resp)
	if err != nil {
		return "", err
	}

	if resp.Output.Text == "" {
		return "", errors.New("no response generated")
	}
	return resp.Output.Text, nil
}

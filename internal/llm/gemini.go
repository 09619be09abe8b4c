package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fiddle-chat/agent/internal/models"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAdapter speaks the Gemini generateContent API. Unlike the
// chat-completions providers it has no system role: the prompt travels
// as the first user turn, assistant turns map to the "model" role, and
// the credential rides in the query string instead of a header.
type GeminiAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewGeminiAdapter(client *http.Client) *GeminiAdapter {
	return &GeminiAdapter{BaseURL: geminiDefaultBaseURL, client: client}
}

func (a *GeminiAdapter) Provider() models.Provider { return models.ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (a *GeminiAdapter) Generate(ctx context.Context, req Request) (string, error) {
	contents := []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: req.SystemPrompt}}},
	}
	for _, e := range req.History {
		role := "user"
		if e.Speaker == models.SpeakerAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: e.Text}}})
	}

	body := geminiRequest{Contents: contents}
	body.GenerationConfig.Temperature = 0.7
	body.GenerationConfig.MaxOutputTokens = 800

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.BaseURL, req.Model, req.Credential)

	var resp geminiResponse
	if err := postJSON(ctx, a.client, url, nil, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fiddle-chat/agent/internal/models"
)

const kimiDefaultBaseURL = "https://api.moonshot.cn/v1"

// GroundingInstruction is appended to the system prompt when uploaded
// reference files accompany the request. The exact wording matches the
// deployed app, including the Chinese refusal phrase the model is told
// to use.
const GroundingInstruction = "\n\nIMPORTANT: Before answering, please fully read all files listed in file_ids. " +
	"Answer solely based on the contents of these files; do not introduce any external knowledge. " +
	"If the required information is not found in the files, clearly state “根据提供的文件无法回答”."

// KimiAdapter speaks the Moonshot chat-completions API. It is the only
// grounding-capable adapter: previously uploaded file ids ride in a
// file_ids request field, and the system prompt gains the grounding
// instruction when any are present.
type KimiAdapter struct {
	BaseURL string
	client  *http.Client
}

func NewKimiAdapter(client *http.Client) *KimiAdapter {
	return &KimiAdapter{BaseURL: kimiDefaultBaseURL, client: client}
}

func (a *KimiAdapter) Provider() models.Provider { return models.ProviderKimi }

type kimiRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	FileIDs     []string      `json:"file_ids,omitempty"`
}

func (a *KimiAdapter) Generate(ctx context.Context, req Request) (string, error) {
	systemPrompt := req.SystemPrompt
	if len(req.FileHandles) > 0 {
		systemPrompt += GroundingInstruction
	}

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	// Drop prior error replies from the context window so the model
	// does not imitate them.
	for _, e := range req.History {
		if e.Speaker == models.SpeakerAssistant &&
			(e.Text == UnsupportedReply || strings.Contains(e.Text, ApologyReply)) {
			continue
		}
		messages = append(messages, chatMessage{Role: string(e.Speaker), Content: e.Text})
	}

	body := kimiRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: 0.7,
		FileIDs:     req.FileHandles,
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

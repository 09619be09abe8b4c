// Package llm routes generation requests to six heterogeneous provider
// back ends behind one adapter contract.
//
// Adapters report failures honestly; the "always answer with something"
// policy — mapping any failure to a fixed user-visible reply — is
// enforced once, at the session engine's call site, not inside each
// adapter.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"fiddle-chat/agent/internal/models"
)

// Dispatch taxonomy. MissingCredential means the request was never
// sent; UnsupportedModel means no adapter matched and no network call
// was made. Both are terminal and non-retryable.
var (
	ErrUnsupportedModel  = errors.New("llm: model not supported")
	ErrMissingCredential = errors.New("llm: no credential configured for provider")
)

// Fixed user-visible replies. These exact strings reach the room
// transcript, so adapters also recognize them when sanitizing history.
const (
	// ApologyReply is emitted for any transport or provider failure,
	// and when a credential is missing.
	ApologyReply = "Sorry, I encountered an error while processing your request."

	// UnsupportedReply is emitted when the model matches no adapter.
	UnsupportedReply = "Model not supported"
)

// Request is the generic generation request an adapter translates into
// its provider's wire format.
type Request struct {
	Model        string
	SystemPrompt string
	History      []models.HistoryEntry
	Credential   string

	// FileHandles are provider-issued reference file ids, only
	// populated for grounding-capable providers. They are passed as a
	// structured request field, never inlined into message text.
	FileHandles []string
}

// Adapter converts the generic request into one provider's wire format
// and extracts the first completion's text from the response. One call
// is one attempt: there is no retry state.
type Adapter interface {
	Provider() models.Provider
	Generate(ctx context.Context, req Request) (string, error)
}

// chatMessage is the message-array element shared by the
// chat-completions style providers.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func historyMessages(history []models.HistoryEntry) []chatMessage {
	msgs := make([]chatMessage, 0, len(history))
	for _, e := range history {
		msgs = append(msgs, chatMessage{Role: string(e.Speaker), Content: e.Text})
	}
	return msgs
}

// defaultHTTPClient bounds provider calls with the transport-level
// timeout only; the protocol applies no additional per-call deadline.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// postJSON sends body as JSON and decodes the response into out.
// Non-2xx responses are returned as errors carrying the response body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("API request failed with status code %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}

// Package docs associates uploaded reference material with characters
// for grounded generation. Only document metadata and provider-issued
// file handles are kept; content lives with the provider.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/pkg/secrets"
	"fiddle-chat/agent/shared/observability"

	"github.com/google/uuid"
)

const kimiFilesURL = "https://api.moonshot.cn/v1/files"

// Manager maintains the two views of a character's attachments: a
// session-scoped cache for fast repeated access, and the durable
// per-character list in the shared store for cross-session visibility.
// It is owned by the session engine, not package-global.
type Manager struct {
	store   store.Store
	secrets secrets.Manager
	log     *logger.Logger
	metrics *observability.Metrics
	client  *http.Client

	// UploadURL is the provider file endpoint, overridable in tests.
	UploadURL string

	mu    sync.Mutex
	cache map[string][]models.UploadedDocument // keyed by character id
}

func NewManager(s store.Store, sec secrets.Manager, log *logger.Logger, client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Manager{
		store:     s,
		secrets:   sec,
		log:       log,
		metrics:   observability.GetMetrics(),
		client:    client,
		UploadURL: kimiFilesURL,
		cache:     make(map[string][]models.UploadedDocument),
	}
}

// Upload sends file content to the provider's file storage and returns
// the resulting document metadata. Only grounding-capable models accept
// uploads; the caller's model is checked with the same provider
// resolution used by dispatch.
func (m *Manager) Upload(ctx context.Context, model, name, mimeType string, size int64, content io.Reader) (*models.UploadedDocument, error) {
	provider := models.ProviderFromModel(model)
	if !provider.SupportsDocuments() {
		return nil, fmt.Errorf("model %q does not support document grounding", model)
	}

	credential, err := m.secrets.Credential(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("no credential for provider %s: %w", provider, err)
	}

	handle, err := m.uploadToProvider(ctx, credential, name, content)
	m.metrics.DocumentUpload(ctx, err == nil)
	if err != nil {
		m.log.LogError(err, "document upload failed", "name", name)
		return nil, err
	}

	doc := &models.UploadedDocument{
		ID:                 uuid.New().String(),
		Name:               name,
		Size:               size,
		MimeType:           mimeType,
		ProviderScope:      provider,
		ProviderFileHandle: handle,
		UploadedAt:         time.Now(),
	}
	return doc, nil
}

func (m *Manager) uploadToProvider(ctx context.Context, credential, name string, content io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("error writing file content: %w", err)
	}
	if err := writer.WriteField("purpose", "file-extract"); err != nil {
		return "", fmt.Errorf("error writing form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("error closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.UploadURL, body)
	if err != nil {
		return "", fmt.Errorf("error creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload failed with status code %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("error unmarshaling upload response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("upload response carried no file id")
	}
	return parsed.ID, nil
}

// Attach records the document in the session cache and appends it to
// the character's durable document list.
func (m *Manager) Attach(ctx context.Context, roomID, characterID string, doc models.UploadedDocument) error {
	m.mu.Lock()
	m.cache[characterID] = append(m.cache[characterID], doc)
	m.mu.Unlock()

	return m.mutateDurable(ctx, roomID, characterID, func(docs []models.UploadedDocument) []models.UploadedDocument {
		return append(docs, doc)
	})
}

// Detach removes the document from both views. It does not retract the
// file from the provider's own storage.
func (m *Manager) Detach(ctx context.Context, roomID, characterID, docID string) error {
	m.mu.Lock()
	m.cache[characterID] = removeDoc(m.cache[characterID], docID)
	m.mu.Unlock()

	return m.mutateDurable(ctx, roomID, characterID, func(docs []models.UploadedDocument) []models.UploadedDocument {
		return removeDoc(docs, docID)
	})
}

// ClearAll drops every document for the character from both views.
func (m *Manager) ClearAll(ctx context.Context, roomID, characterID string) error {
	m.mu.Lock()
	delete(m.cache, characterID)
	m.mu.Unlock()

	return m.mutateDurable(ctx, roomID, characterID, func([]models.UploadedDocument) []models.UploadedDocument {
		return nil
	})
}

// Documents returns the character's attachments, preferring the session
// cache and falling back to the durable list.
func (m *Manager) Documents(ctx context.Context, roomID, characterID string) []models.UploadedDocument {
	m.mu.Lock()
	cached, ok := m.cache[characterID]
	if ok {
		out := append([]models.UploadedDocument(nil), cached...)
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	room, err := m.store.Room(ctx, roomID)
	if err != nil {
		m.log.LogError(err, "failed to read durable document list", "character_id", characterID)
		return nil
	}
	for i := range room.Characters {
		if room.Characters[i].ID == characterID {
			docs := append([]models.UploadedDocument(nil), room.Characters[i].Documents...)
			m.mu.Lock()
			m.cache[characterID] = docs
			m.mu.Unlock()
			return docs
		}
	}
	return nil
}

// HandlesFor filters the character's documents to the given provider
// scope and returns their provider file handles.
func (m *Manager) HandlesFor(ctx context.Context, roomID, characterID string, provider models.Provider) []string {
	var handles []string
	for _, doc := range m.Documents(ctx, roomID, characterID) {
		if doc.ProviderScope == provider && doc.ProviderFileHandle != "" {
			handles = append(handles, doc.ProviderFileHandle)
		}
	}
	return handles
}

// Forget drops a character from the session cache only (character
// deletion also purges the durable list via the room write).
func (m *Manager) Forget(characterID string) {
	m.mu.Lock()
	delete(m.cache, characterID)
	m.mu.Unlock()
}

func (m *Manager) mutateDurable(ctx context.Context, roomID, characterID string, mutate func([]models.UploadedDocument) []models.UploadedDocument) error {
	room, err := m.store.Room(ctx, roomID)
	if err != nil {
		return err
	}
	for i := range room.Characters {
		if room.Characters[i].ID == characterID {
			room.Characters[i].Documents = mutate(room.Characters[i].Documents)
			room.Characters[i].UpdatedAt = time.Now()
			return m.store.UpdateCharacters(ctx, roomID, room.Characters)
		}
	}
	return fmt.Errorf("character %s not found in room %s", characterID, roomID)
}

func removeDoc(docs []models.UploadedDocument, docID string) []models.UploadedDocument {
	out := docs[:0]
	for _, d := range docs {
		if d.ID != docID {
			out = append(out, d)
		}
	}
	return out
}

// Package history keeps the bounded per-(room, character) conversation
// buffer a processor uses to build provider context windows. It is
// process-local working memory, not the durable transcript.
package history

import (
	"sync"

	"fiddle-chat/agent/internal/models"
)

// DefaultLimit caps each buffer at the last 20 entries, which keeps
// provider context windows under token limits.
const DefaultLimit = 20

// Window is a session-scoped set of bounded FIFO buffers keyed by
// (room, character). It is owned by the session engine and discarded
// when the engine stops.
type Window struct {
	mu      sync.Mutex
	limit   int
	buffers map[key][]models.HistoryEntry
}

type key struct {
	roomID      string
	characterID string
}

// NewWindow creates a window with the given per-buffer limit.
// limit <= 0 selects DefaultLimit.
func NewWindow(limit int) *Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Window{
		limit:   limit,
		buffers: make(map[key][]models.HistoryEntry),
	}
}

// Append pushes an entry onto the buffer for (roomID, characterID),
// evicting the oldest entry first if the buffer is full.
func (w *Window) Append(roomID, characterID string, entry models.HistoryEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	k := key{roomID: roomID, characterID: characterID}
	buf := w.buffers[k]
	buf = append(buf, entry)
	if len(buf) > w.limit {
		buf = buf[1:]
	}
	w.buffers[k] = buf
}

// Entries returns a copy of the buffer for (roomID, characterID), oldest
// first.
func (w *Window) Entries(roomID, characterID string) []models.HistoryEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := w.buffers[key{roomID: roomID, characterID: characterID}]
	return append([]models.HistoryEntry(nil), buf...)
}

// Clear drops the buffer for (roomID, characterID). Used when a
// character is deleted.
func (w *Window) Clear(roomID, characterID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.buffers, key{roomID: roomID, characterID: characterID})
}

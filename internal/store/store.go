// Package store is the agent's view of the shared document store that
// coordinates all sessions. The schema mirrors the deployed app:
// rooms/{roomId} holds the character list, rooms/{roomId}/members/{pid}
// per-room presence, principals/{pid} global presence.
//
// Every character-list mutation is a read-modify-write of the whole
// list. There is no field-level locking: concurrent writers clobber each
// other at document granularity and the last write wins. The failover
// protocol depends on exactly these semantics.
package store

import (
	"context"
	"errors"

	"fiddle-chat/agent/internal/models"
)

// ErrNotFound is returned when a document does not exist. For presence
// records this is a liveness signal, not a failure.
var ErrNotFound = errors.New("store: document not found")

// RoomEvent notifies subscribers that a room document changed.
type RoomEvent struct {
	RoomID string
}

// Store is the shared document store contract.
type Store interface {
	// Room reads the room document.
	Room(ctx context.Context, roomID string) (*models.Room, error)

	// UpdateCharacters overwrites the room's character list in one
	// write. Last write wins.
	UpdateCharacters(ctx context.Context, roomID string, characters []models.Character) error

	// Presence reads a principal's global presence record.
	Presence(ctx context.Context, principalID string) (*models.PresenceRecord, error)

	// WritePresence overwrites a principal's global presence record.
	WritePresence(ctx context.Context, principalID string, rec models.PresenceRecord) error

	// SetOnline flips only the online flag of an existing presence
	// record, preserving its heartbeat timestamp.
	SetOnline(ctx context.Context, principalID string, online bool) error

	// Member reads a principal's room-membership record.
	Member(ctx context.Context, roomID, principalID string) (*models.RoomMember, error)

	// WriteMember overwrites a principal's room-membership record.
	WriteMember(ctx context.Context, roomID, principalID string, m models.RoomMember) error

	// Subscribe delivers an event whenever the room document changes.
	// The channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, roomID string) (<-chan RoomEvent, error)
}

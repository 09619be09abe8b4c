package models

import "time"

// PresenceRecord is a principal's durable global liveness marker. Records
// are refreshed by the heartbeat publisher and never deleted; a record is
// stale once its heartbeat age exceeds the configured threshold.
type PresenceRecord struct {
	SessionID       string    `json:"session_id"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Online          bool      `json:"online"`
}

// RoomMember is per-room presence, distinct from the global record: a
// principal can be globally online yet absent from a given room.
type RoomMember struct {
	SessionID    string    `json:"session_id"`
	LastActiveAt time.Time `json:"last_active_at"`
	InRoom       bool      `json:"in_room"`
}

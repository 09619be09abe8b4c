package models

import "time"

// Character is an AI-driven participant in a room. It is the unit of
// ownership: exactly one session (the processor) is expected to drive its
// replies at any instant, though the handoff protocol is best-effort and
// may briefly double-assign under races.
type Character struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Prompt         string             `json:"prompt"`
	Model          string             `json:"model"`
	Provider       Provider           `json:"provider"`
	AvatarURL      string             `json:"avatar_url,omitempty"`
	OwnerID        string             `json:"owner_id"`
	IsActive       bool               `json:"is_active"`
	LastResponseAt time.Time          `json:"last_response_at,omitempty"`
	Documents      []UploadedDocument `json:"documents,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Room is the shared room document. Only the character list matters to
// the agent; other room metadata is carried opaquely.
type Room struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Characters []Character `json:"characters"`
}

type CreateCharacterRequest struct {
	Name      string `json:"name" binding:"required"`
	Prompt    string `json:"prompt" binding:"required"`
	Model     string `json:"model" binding:"required"`
	AvatarURL string `json:"avatar_url"`
}

type UpdateCharacterRequest struct {
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model"`
	AvatarURL string `json:"avatar_url"`
}

package models

import "time"

// Speaker labels a history entry's originator in provider terms.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// HistoryEntry is one line of the bounded per-(room, character)
// conversation buffer used to build provider context windows.
type HistoryEntry struct {
	Speaker Speaker `json:"role"`
	Text    string  `json:"content"`
}

// ChatMessage is a transcript line emitted to the room.
type ChatMessage struct {
	ID          string    `json:"id" gorm:"primarykey"`
	RoomID      string    `json:"room_id" gorm:"index:idx_messages_room"`
	CharacterID string    `json:"character_id,omitempty" gorm:"index:idx_messages_room"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

type SendMessageRequest struct {
	Sender  string `json:"sender" binding:"required"`
	Content string `json:"content" binding:"required"`
}

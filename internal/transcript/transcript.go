// Package transcript persists emitted chat messages. The message store
// proper is an external collaborator of the protocol; this is the
// reference implementation the agent ships with, behind the narrow Sink
// interface so deployments can substitute their own.
package transcript

import (
	"context"
	"time"

	"fiddle-chat/agent/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sink receives messages emitted by the session engine.
type Sink interface {
	Emit(ctx context.Context, msg models.ChatMessage) error
}

// Store is the gorm-backed transcript.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.ChatMessage{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Emit persists one transcript line.
func (s *Store) Emit(ctx context.Context, msg models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return s.db.WithContext(ctx).Create(&msg).Error
}

// Recent returns the room's most recent messages, oldest first.
func (s *Store) Recent(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

var _ Sink = (*Store)(nil)

// MemorySink collects messages in memory for tests.
type MemorySink struct {
	Messages []models.ChatMessage
}

func (m *MemorySink) Emit(_ context.Context, msg models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

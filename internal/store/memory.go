package store

import (
	"context"
	"sync"

	"fiddle-chat/agent/internal/models"
)

// MemoryStore is an in-process Store used by tests and single-process
// runs. It keeps the same last-write-wins, whole-document semantics as
// the Redis implementation.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]*models.Room
	members  map[string]models.RoomMember
	presence map[string]models.PresenceRecord
	subs     map[string][]chan RoomEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*models.Room),
		members:  make(map[string]models.RoomMember),
		presence: make(map[string]models.PresenceRecord),
		subs:     make(map[string][]chan RoomEvent),
	}
}

// SeedRoom installs a room document directly (test setup).
func (s *MemoryStore) SeedRoom(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	cp.Characters = append([]models.Character(nil), room.Characters...)
	s.rooms[room.ID] = &cp
}

func (s *MemoryStore) Room(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *room
	cp.Characters = append([]models.Character(nil), room.Characters...)
	return &cp, nil
}

func (s *MemoryStore) UpdateCharacters(_ context.Context, roomID string, characters []models.Character) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = &models.Room{ID: roomID}
		s.rooms[roomID] = room
	}
	room.Characters = append([]models.Character(nil), characters...)
	subs := append([]chan RoomEvent(nil), s.subs[roomID]...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- RoomEvent{RoomID: roomID}:
		default:
		}
	}
	return nil
}

func (s *MemoryStore) Presence(_ context.Context, principalID string) (*models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.presence[principalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) WritePresence(_ context.Context, principalID string, rec models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[principalID] = rec
	return nil
}

func (s *MemoryStore) SetOnline(_ context.Context, principalID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.presence[principalID]
	if !ok {
		return ErrNotFound
	}
	rec.Online = online
	s.presence[principalID] = rec
	return nil
}

func (s *MemoryStore) Member(_ context.Context, roomID, principalID string) (*models.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[roomID+"/"+principalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) WriteMember(_ context.Context, roomID, principalID string, m models.RoomMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[roomID+"/"+principalID] = m
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, roomID string) (<-chan RoomEvent, error) {
	ch := make(chan RoomEvent, 8)

	s.mu.Lock()
	s.subs[roomID] = append(s.subs[roomID], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		subs := s.subs[roomID]
		for i, c := range subs {
			if c == ch {
				s.subs[roomID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

var _ Store = (*MemoryStore)(nil)

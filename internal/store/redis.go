package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/pkg/config"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over Redis. Documents are stored as JSON
// blobs under flat keys; room-change notifications travel over a pub/sub
// channel per room.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store from the application config.
func NewRedisStore() *RedisStore {
	cfg := config.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
	return &RedisStore{client: client}
}

// NewRedisStoreWithClient wraps an existing client (used in tests).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func roomKey(roomID string) string { return "rooms:" + roomID }

func memberKey(roomID, principalID string) string {
	return fmt.Sprintf("rooms:%s:members:%s", roomID, principalID)
}

func presenceKey(principalID string) string { return "principals:" + principalID }

func roomChannel(roomID string) string { return "rooms:" + roomID + ":events" }

func (s *RedisStore) Room(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := s.getJSON(ctx, roomKey(roomID), &room); err != nil {
		return nil, err
	}
	if room.ID == "" {
		room.ID = roomID
	}
	return &room, nil
}

func (s *RedisStore) UpdateCharacters(ctx context.Context, roomID string, characters []models.Character) error {
	// Whole-document read-modify-write; unrelated concurrent edits to
	// the same room can be clobbered. Last write wins.
	room, err := s.Room(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		room = &models.Room{ID: roomID}
	}
	room.Characters = characters

	if err := s.setJSON(ctx, roomKey(roomID), room); err != nil {
		return err
	}
	return s.publish(ctx, roomID)
}

func (s *RedisStore) Presence(ctx context.Context, principalID string) (*models.PresenceRecord, error) {
	var rec models.PresenceRecord
	if err := s.getJSON(ctx, presenceKey(principalID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) WritePresence(ctx context.Context, principalID string, rec models.PresenceRecord) error {
	return s.setJSON(ctx, presenceKey(principalID), rec)
}

func (s *RedisStore) SetOnline(ctx context.Context, principalID string, online bool) error {
	rec, err := s.Presence(ctx, principalID)
	if err != nil {
		return err
	}
	rec.Online = online
	return s.WritePresence(ctx, principalID, *rec)
}

func (s *RedisStore) Member(ctx context.Context, roomID, principalID string) (*models.RoomMember, error) {
	var m models.RoomMember
	if err := s.getJSON(ctx, memberKey(roomID, principalID), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) WriteMember(ctx context.Context, roomID, principalID string, m models.RoomMember) error {
	return s.setJSON(ctx, memberKey(roomID, principalID), m)
}

func (s *RedisStore) Subscribe(ctx context.Context, roomID string) (<-chan RoomEvent, error) {
	sub := s.client.Subscribe(ctx, roomChannel(roomID))

	// Force the subscription to be established before returning
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	events := make(chan RoomEvent, 8)
	go func() {
		defer close(events)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case events <- RoomEvent{RoomID: msg.Payload}:
				default:
					// Subscriber is slow; drop rather than block the
					// pub/sub reader. The next event resynchronizes.
				}
			}
		}
	}()
	return events, nil
}

func (s *RedisStore) publish(ctx context.Context, roomID string) error {
	return s.client.Publish(ctx, roomChannel(roomID), roomID).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

var _ Store = (*RedisStore)(nil)

// touchTimeout bounds individual store writes issued by timers so a hung
// store connection cannot pile up goroutines.
const touchTimeout = 5 * time.Second

// WithTouchTimeout derives a context for a single fire-and-forget write.
func WithTouchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, touchTimeout)
}

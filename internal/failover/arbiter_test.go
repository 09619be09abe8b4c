package failover

import (
	"context"
	"testing"
	"time"

	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	return logger.New(cfg)
}

func newTestArbiter(s store.Store, principalID string, at time.Time) *Arbiter {
	a := NewArbiter(s, testLogger(), Config{
		PrincipalID: principalID,
		RoomID:      "room-1",
	})
	a.now = func() time.Time { return at }
	return a
}

func seedRoom(s *store.MemoryStore, chars ...models.Character) {
	s.SeedRoom(&models.Room{ID: "room-1", Characters: chars})
}

func TestCheckOnceTakesOverStaleOwner(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	ctx := context.Background()

	seedRoom(s, models.Character{ID: "c1", OwnerID: "p-old", IsActive: true})
	require.NoError(t, s.WritePresence(ctx, "p-old", models.PresenceRecord{
		LastHeartbeatAt: now.Add(-45 * time.Second),
		Online:          true,
	}))

	a := newTestArbiter(s, "p-new", now)
	assert.Equal(t, 1, a.CheckOnce(ctx))

	room, err := s.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p-new", room.Characters[0].OwnerID)

	// Stale owner was marked offline on the way
	rec, err := s.Presence(ctx, "p-old")
	require.NoError(t, err)
	assert.False(t, rec.Online)

	// Second cycle is a no-op: the character is now self-owned
	assert.Equal(t, 0, a.CheckOnce(ctx))
}

func TestCheckOnceTakesOverMissingOwner(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	ctx := context.Background()

	// No presence record written for p-gone at all
	seedRoom(s, models.Character{ID: "c1", OwnerID: "p-gone", IsActive: true})

	a := newTestArbiter(s, "p-new", now)
	assert.Equal(t, 1, a.CheckOnce(ctx))

	room, err := s.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p-new", room.Characters[0].OwnerID)
}

func TestCheckOnceLeavesFreshOwnerAlone(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	ctx := context.Background()

	seedRoom(s, models.Character{ID: "c1", OwnerID: "p-live", IsActive: true})
	require.NoError(t, s.WritePresence(ctx, "p-live", models.PresenceRecord{
		LastHeartbeatAt: now.Add(-5 * time.Second),
		Online:          true,
	}))

	a := newTestArbiter(s, "p-new", now)
	assert.Equal(t, 0, a.CheckOnce(ctx))

	room, err := s.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p-live", room.Characters[0].OwnerID)
}

func TestCheckOnceSkipsInactiveCharacters(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	ctx := context.Background()

	seedRoom(s, models.Character{ID: "c1", OwnerID: "p-gone", IsActive: false})

	a := newTestArbiter(s, "p-new", now)
	assert.Equal(t, 0, a.CheckOnce(ctx))

	room, err := s.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p-gone", room.Characters[0].OwnerID)
}

func TestCheckOnceBatchesReassignmentsIntoOneWrite(t *testing.T) {
	now := time.Now()
	mem := store.NewMemoryStore()
	ctx := context.Background()

	seedRoom(mem,
		models.Character{ID: "c1", OwnerID: "p-gone", IsActive: true},
		models.Character{ID: "c2", OwnerID: "p-gone", IsActive: true},
		models.Character{ID: "c3", OwnerID: "p-new", IsActive: true},
	)

	counting := &countingStore{Store: mem}
	a := newTestArbiter(counting, "p-new", now)

	assert.Equal(t, 2, a.CheckOnce(ctx))
	assert.Equal(t, 1, counting.updates)
}

func TestConcurrentArbitersLastWriteWins(t *testing.T) {
	now := time.Now()
	mem := store.NewMemoryStore()
	ctx := context.Background()

	seedRoom(mem, models.Character{ID: "c1", OwnerID: "p-dead", IsActive: true})

	// Both arbiters observe the same pre-takeover snapshot, as happens
	// when their check cycles interleave.
	snap, err := mem.Room(ctx, "room-1")
	require.NoError(t, err)

	first := newTestArbiter(&snapshotStore{Store: mem, room: snap}, "p-a", now)
	second := newTestArbiter(&snapshotStore{Store: mem, room: snap}, "p-b", now)

	assert.Equal(t, 1, first.CheckOnce(ctx))
	assert.Equal(t, 1, second.CheckOnce(ctx))

	// Both claimed; the later write clobbered the earlier one.
	room, err := mem.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p-b", room.Characters[0].OwnerID)
}

func TestCheckOnceSkipsRoomReadFailure(t *testing.T) {
	a := newTestArbiter(&failingStore{}, "p-new", time.Now())
	assert.Equal(t, 0, a.CheckOnce(context.Background()))
}

// countingStore counts character-list writes.
type countingStore struct {
	store.Store
	updates int
}

func (c *countingStore) UpdateCharacters(ctx context.Context, roomID string, chars []models.Character) error {
	c.updates++
	return c.Store.UpdateCharacters(ctx, roomID, chars)
}

// snapshotStore serves a fixed room snapshot for reads while writes go
// through to the backing store.
type snapshotStore struct {
	store.Store
	room *models.Room
}

func (s *snapshotStore) Room(context.Context, string) (*models.Room, error) {
	cp := *s.room
	cp.Characters = append([]models.Character(nil), s.room.Characters...)
	return &cp, nil
}

// failingStore fails every room read.
type failingStore struct {
	store.MemoryStore
}

func (f *failingStore) Room(context.Context, string) (*models.Room, error) {
	return nil, context.DeadlineExceeded
}

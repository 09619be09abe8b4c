package presence

import (
	"context"
	"testing"
	"time"

	"fiddle-chat/agent/internal/schedule"
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

func newTestPublisher(s store.Store, at time.Time) *Publisher {
	p := NewPublisher(s, testLogger(), Config{
		PrincipalID: "p1",
		RoomID:      "room-1",
	})
	p.now = func() time.Time { return at }
	return p
}

func TestHeartbeatWritesGlobalPresence(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	p := newTestPublisher(s, now)

	p.Heartbeat(context.Background())

	rec, err := s.Presence(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, rec.Online)
	assert.True(t, rec.LastHeartbeatAt.Equal(now))
	assert.Equal(t, "p1", rec.SessionID)
}

func TestRefreshMembershipWritesRoomRecord(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	p := newTestPublisher(s, now)

	p.RefreshMembership(context.Background())

	m, err := s.Member(context.Background(), "room-1", "p1")
	require.NoError(t, err)
	assert.True(t, m.InRoom)
	assert.True(t, m.LastActiveAt.Equal(now))
}

func TestLeaveFlipsMembershipOff(t *testing.T) {
	now := time.Now()
	s := store.NewMemoryStore()
	p := newTestPublisher(s, now)

	p.RefreshMembership(context.Background())
	p.Leave(context.Background())

	m, err := s.Member(context.Background(), "room-1", "p1")
	require.NoError(t, err)
	assert.False(t, m.InRoom)
}

func TestRegisterPublishesImmediately(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPublisher(s, testLogger(), Config{
		PrincipalID:     "p1",
		RoomID:          "room-1",
		HeartbeatPeriod: time.Hour,
		PresencePeriod:  time.Hour,
	})

	r := schedule.NewRunner(context.Background())
	defer r.Stop()
	p.Register(r)

	// Both records appear without waiting a full period
	require.Eventually(t, func() bool {
		if _, err := s.Presence(context.Background(), "p1"); err != nil {
			return false
		}
		_, err := s.Member(context.Background(), "room-1", "p1")
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

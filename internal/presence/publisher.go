// Package presence announces a session's liveness to the shared store.
package presence

import (
	"context"
	"time"

	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/internal/schedule"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/shared/observability"
)

// Publisher periodically refreshes the principal's global presence
// record and its room-membership record. Both writes are fire-and-forget:
// a failed write is logged and the schedule keeps running.
type Publisher struct {
	store       store.Store
	log         *logger.Logger
	metrics     *observability.Metrics
	principalID string
	roomID      string

	heartbeatPeriod time.Duration
	presencePeriod  time.Duration

	now func() time.Time
}

// Config for a Publisher. Zero periods select the protocol defaults.
type Config struct {
	PrincipalID     string
	RoomID          string
	HeartbeatPeriod time.Duration
	PresencePeriod  time.Duration
}

func NewPublisher(s store.Store, log *logger.Logger, cfg Config) *Publisher {
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = 10 * time.Second
	}
	if cfg.PresencePeriod <= 0 {
		cfg.PresencePeriod = 10 * time.Second
	}
	return &Publisher{
		store:           s,
		log:             log.WithPrincipal(cfg.PrincipalID).WithRoom(cfg.RoomID),
		metrics:         observability.GetMetrics(),
		principalID:     cfg.PrincipalID,
		roomID:          cfg.RoomID,
		heartbeatPeriod: cfg.HeartbeatPeriod,
		presencePeriod:  cfg.PresencePeriod,
		now:             time.Now,
	}
}

// Register schedules the two periodic writes on the runner. Both run
// once immediately so a newly joined principal is visible without
// waiting a full period.
func (p *Publisher) Register(r *schedule.Runner) {
	r.Every(p.heartbeatPeriod, true, p.Heartbeat)
	r.Every(p.presencePeriod, true, p.RefreshMembership)
}

// Heartbeat writes the global presence record once.
func (p *Publisher) Heartbeat(ctx context.Context) {
	wctx, cancel := store.WithTouchTimeout(ctx)
	defer cancel()

	err := p.store.WritePresence(wctx, p.principalID, models.PresenceRecord{
		SessionID:       p.principalID,
		LastHeartbeatAt: p.now(),
		Online:          true,
	})
	p.metrics.HeartbeatWrite(ctx, err == nil)
	if err != nil {
		p.log.LogError(err, "heartbeat write failed")
	}
}

// RefreshMembership writes the room-membership record once.
func (p *Publisher) RefreshMembership(ctx context.Context) {
	wctx, cancel := store.WithTouchTimeout(ctx)
	defer cancel()

	err := p.store.WriteMember(wctx, p.roomID, p.principalID, models.RoomMember{
		SessionID:    p.principalID,
		LastActiveAt: p.now(),
		InRoom:       true,
	})
	if err != nil {
		p.log.LogError(err, "room presence write failed")
	}
}

// Leave marks the principal absent from the room. Called once on
// shutdown, before the periodic tasks are cancelled.
func (p *Publisher) Leave(ctx context.Context) {
	err := p.store.WriteMember(ctx, p.roomID, p.principalID, models.RoomMember{
		SessionID:    p.principalID,
		LastActiveAt: p.now(),
		InRoom:       false,
	})
	if err != nil {
		p.log.LogError(err, "room leave write failed")
	}
}

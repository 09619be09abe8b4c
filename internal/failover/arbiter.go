// Package failover reassigns character ownership away from sessions
// believed offline.
//
// The protocol is optimistic and lock-free: reassignment is a plain
// read-modify-write of the room's character list, so two sessions that
// observe the same stale owner concurrently can both claim it. The
// store's last-write-wins semantics pick the final owner and the loser
// may, at worst, also answer one pending message. This matches the
// deployed app and is accepted; see the room-level document model.
package failover

import (
	"context"
	"errors"
	"time"

	"fiddle-chat/agent/internal/schedule"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/shared/observability"
)

// Arbiter monitors other sessions' presence and takes over their
// characters when they go quiet. It is purely passive: it never contacts
// a live owner.
type Arbiter struct {
	store       store.Store
	log         *logger.Logger
	metrics     *observability.Metrics
	principalID string
	roomID      string

	checkPeriod time.Duration
	staleAfter  time.Duration

	now func() time.Time
}

// Config for an Arbiter. Zero values select the protocol defaults
// (15s check period, 30s staleness threshold).
type Config struct {
	PrincipalID string
	RoomID      string
	CheckPeriod time.Duration
	StaleAfter  time.Duration
}

func NewArbiter(s store.Store, log *logger.Logger, cfg Config) *Arbiter {
	if cfg.CheckPeriod <= 0 {
		cfg.CheckPeriod = 15 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	return &Arbiter{
		store:       s,
		log:         log.WithPrincipal(cfg.PrincipalID).WithRoom(cfg.RoomID),
		metrics:     observability.GetMetrics(),
		principalID: cfg.PrincipalID,
		roomID:      cfg.RoomID,
		checkPeriod: cfg.CheckPeriod,
		staleAfter:  cfg.StaleAfter,
		now:         time.Now,
	}
}

// Register schedules the periodic ownership check on the runner.
func (a *Arbiter) Register(r *schedule.Runner) {
	r.Every(a.checkPeriod, false, func(ctx context.Context) {
		a.CheckOnce(ctx)
	})
}

// CheckOnce runs one ownership-check cycle. It returns the number of
// characters reassigned to this session.
//
// Decision table, per active character not owned by this session:
//   - owner presence record absent: take ownership (owner gone)
//   - heartbeat older than the staleness threshold: mark the owner
//     offline, then take ownership
//   - otherwise: leave it alone
//
// All reassignments are batched into a single character-list write.
func (a *Arbiter) CheckOnce(ctx context.Context) int {
	room, err := a.store.Room(ctx, a.roomID)
	if err != nil {
		// Room unreadable this cycle: log and wait for the next one.
		a.log.LogError(err, "ownership check skipped, room unreadable")
		return 0
	}

	characters := room.Characters
	changed := false
	reassigned := 0

	for i := range characters {
		c := &characters[i]
		if !c.IsActive || c.OwnerID == a.principalID {
			continue
		}

		rec, err := a.store.Presence(ctx, c.OwnerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// No presence record means the owner no longer exists.
				a.log.Info("taking over character, owner record missing",
					"character_id", c.ID, "previous_owner", c.OwnerID)
				c.OwnerID = a.principalID
				changed = true
				reassigned++
				a.metrics.Reassignment(ctx, "owner_missing")
				continue
			}
			// Presence unreadable: skip this character this cycle.
			a.log.LogError(err, "presence read failed, skipping character",
				"character_id", c.ID, "owner_id", c.OwnerID)
			continue
		}

		if a.now().Sub(rec.LastHeartbeatAt) > a.staleAfter {
			if err := a.store.SetOnline(ctx, c.OwnerID, false); err != nil {
				a.log.LogError(err, "failed to mark stale owner offline",
					"owner_id", c.OwnerID)
			}
			a.log.Info("taking over character, owner heartbeat stale",
				"character_id", c.ID, "previous_owner", c.OwnerID,
				"last_heartbeat_at", rec.LastHeartbeatAt)
			c.OwnerID = a.principalID
			changed = true
			reassigned++
			a.metrics.Reassignment(ctx, "stale_heartbeat")
		}
	}

	if changed {
		if err := a.store.UpdateCharacters(ctx, a.roomID, characters); err != nil {
			a.log.LogError(err, "failed to write reassigned character list")
			return 0
		}
	}
	return reassigned
}

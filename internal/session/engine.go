// Package session runs one client session of the shared room: presence
// announcements, ownership monitoring, and the dispatch loop for owned
// characters. All per-session working state (history window, document
// cache) is owned by the Engine and dies with it.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"fiddle-chat/agent/internal/docs"
	"fiddle-chat/agent/internal/failover"
	"fiddle-chat/agent/internal/history"
	"fiddle-chat/agent/internal/llm"
	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/internal/presence"
	"fiddle-chat/agent/internal/schedule"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/internal/transcript"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/pkg/secrets"
	"fiddle-chat/agent/shared/observability"
)

// Broadcaster pushes emitted messages to live watchers (the websocket
// hub in production).
type Broadcaster interface {
	Broadcast(msg models.ChatMessage)
}

// Config for an Engine. Zero periods and a zero history limit select
// protocol defaults; a zero ReplyDelayMax disables the reply pause
// (pkg/config supplies the 1-2s production timing).
type Config struct {
	PrincipalID          string
	RoomID               string
	HeartbeatPeriod      time.Duration
	RoomPresencePeriod   time.Duration
	OwnershipCheckPeriod time.Duration
	StaleAfter           time.Duration
	HistoryLimit         int
	ReplyDelayMin        time.Duration
	ReplyDelayMax        time.Duration
}

// Engine is the session-scoped context object for one (principal, room)
// pair.
type Engine struct {
	cfg      Config
	store    store.Store
	registry *llm.Registry
	secrets  secrets.Manager
	log      *logger.Logger
	metrics  *observability.Metrics

	window *history.Window
	docs   *docs.Manager

	publisher *presence.Publisher
	arbiter   *failover.Arbiter
	runner    *schedule.Runner

	sink        transcript.Sink
	broadcaster Broadcaster

	// dispatchMu serializes message processing so replies for this
	// session's characters are emitted in list order, never interleaved.
	dispatchMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewEngine(cfg Config, s store.Store, registry *llm.Registry, sec secrets.Manager, dm *docs.Manager, sink transcript.Sink, bc Broadcaster, log *logger.Logger) *Engine {
	log = log.WithPrincipal(cfg.PrincipalID).WithRoom(cfg.RoomID)
	e := &Engine{
		cfg:         cfg,
		store:       s,
		registry:    registry,
		secrets:     sec,
		log:         log,
		metrics:     observability.GetMetrics(),
		window:      history.NewWindow(cfg.HistoryLimit),
		docs:        dm,
		sink:        sink,
		broadcaster: bc,
	}
	e.publisher = presence.NewPublisher(s, log, presence.Config{
		PrincipalID:     cfg.PrincipalID,
		RoomID:          cfg.RoomID,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		PresencePeriod:  cfg.RoomPresencePeriod,
	})
	e.arbiter = failover.NewArbiter(s, log, failover.Config{
		PrincipalID: cfg.PrincipalID,
		RoomID:      cfg.RoomID,
		CheckPeriod: cfg.OwnershipCheckPeriod,
		StaleAfter:  cfg.StaleAfter,
	})
	return e
}

// Start launches the periodic protocol tasks and the room watcher.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.runner = schedule.NewRunner(ctx)
		e.publisher.Register(e.runner)
		e.arbiter.Register(e.runner)
		go e.watchRoom(e.runner.Context())
		e.log.Info("session engine started")
	})
}

// Stop marks the session absent from the room, then cancels the
// periodic tasks. An in-flight provider call is not aborted: it still
// completes, appends to history and emits its reply.
func (e *Engine) Stop(ctx context.Context) {
	e.stopOnce.Do(func() {
		e.publisher.Leave(ctx)
		if e.runner != nil {
			e.runner.Stop()
		}
		e.log.Info("session engine stopped")
	})
}

// watchRoom logs ownership churn observed through the store's
// subscription primitive.
func (e *Engine) watchRoom(ctx context.Context) {
	events, err := e.store.Subscribe(ctx, e.cfg.RoomID)
	if err != nil {
		e.log.LogError(err, "room subscription unavailable")
		return
	}
	owned := make(map[string]bool)
	for range events {
		room, err := e.store.Room(ctx, e.cfg.RoomID)
		if err != nil {
			continue
		}
		for _, c := range room.Characters {
			mine := c.OwnerID == e.cfg.PrincipalID
			if mine && !owned[c.ID] {
				e.log.Info("now processing character", "character_id", c.ID, "name", c.Name)
			} else if !mine && owned[c.ID] {
				e.log.Info("character taken over by another session", "character_id", c.ID, "new_owner", c.OwnerID)
			}
			owned[c.ID] = mine
		}
	}
}

// HandleUserMessage processes a newly arrived user message against
// every active character this session owns, one at a time in list
// order, with a randomized pause before each reply so bursts do not
// land out of order in the transcript.
func (e *Engine) HandleUserMessage(ctx context.Context, sender, text string) error {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	room, err := e.store.Room(ctx, e.cfg.RoomID)
	if err != nil {
		return fmt.Errorf("failed to read room: %w", err)
	}

	characters := room.Characters
	replied := false

	for i := range characters {
		c := &characters[i]
		if c.OwnerID != e.cfg.PrincipalID || !c.IsActive {
			continue
		}

		e.pause(ctx)

		reply := e.dispatch(ctx, c, sender, text)

		c.LastResponseAt = time.Now()
		replied = true

		msg := models.ChatMessage{
			RoomID:      e.cfg.RoomID,
			CharacterID: c.ID,
			Sender:      c.Name,
			Content:     reply,
			Timestamp:   time.Now(),
		}
		if err := e.sink.Emit(ctx, msg); err != nil {
			e.log.LogError(err, "failed to emit reply", "character_id", c.ID)
		}
		if e.broadcaster != nil {
			e.broadcaster.Broadcast(msg)
		}
	}

	if replied {
		if err := e.store.UpdateCharacters(ctx, e.cfg.RoomID, characters); err != nil {
			e.log.LogError(err, "failed to record last response times")
		}
	}
	return nil
}

// dispatch runs one character turn: history append, routing, provider
// call, history append. Every failure is absorbed into a fixed reply so
// the room always sees some answer; nothing propagates out of here.
func (e *Engine) dispatch(ctx context.Context, c *models.Character, sender, text string) string {
	e.window.Append(e.cfg.RoomID, c.ID, models.HistoryEntry{
		Speaker: models.SpeakerUser,
		Text:    fmt.Sprintf("%s: %s", sender, text),
	})

	reply := e.generate(ctx, c)

	e.window.Append(e.cfg.RoomID, c.ID, models.HistoryEntry{
		Speaker: models.SpeakerAssistant,
		Text:    reply,
	})
	return reply
}

// adapterFor resolves a character's adapter from its provider tag.
// Characters written by other sessions may carry no tag, so the model
// string is parsed as a fallback.
func (e *Engine) adapterFor(c *models.Character) (llm.Adapter, error) {
	if c.Provider != models.ProviderUnknown {
		if a, ok := e.registry.Adapter(c.Provider); ok {
			return a, nil
		}
	}
	return e.registry.Route(c.Model)
}

func (e *Engine) generate(ctx context.Context, c *models.Character) string {
	log := e.log.WithCharacter(c.ID)

	adapter, err := e.adapterFor(c)
	if err != nil {
		log.Warn("unsupported model", "model", c.Model)
		e.metrics.Dispatch(ctx, string(models.ProviderUnknown), "unsupported_model")
		return llm.UnsupportedReply
	}
	provider := adapter.Provider()

	if !e.secrets.Has(provider) {
		log.Warn("no credential configured, request not sent", "provider", provider)
		e.metrics.Dispatch(ctx, string(provider), "missing_credential")
		return llm.ApologyReply
	}
	credential, err := e.secrets.Credential(ctx, provider)
	if err != nil {
		log.LogError(err, "credential lookup failed", "provider", provider)
		e.metrics.Dispatch(ctx, string(provider), "missing_credential")
		return llm.ApologyReply
	}

	req := llm.Request{
		Model:        c.Model,
		SystemPrompt: c.Prompt,
		History:      e.window.Entries(e.cfg.RoomID, c.ID),
		Credential:   credential,
	}
	if provider.SupportsDocuments() {
		req.FileHandles = e.docs.HandlesFor(ctx, e.cfg.RoomID, c.ID, provider)
	}

	reply, err := adapter.Generate(ctx, req)
	if err != nil {
		log.LogError(err, "provider call failed", "provider", provider, "model", c.Model)
		e.metrics.Dispatch(ctx, string(provider), "error")
		return llm.ApologyReply
	}
	e.metrics.Dispatch(ctx, string(provider), "ok")
	return reply
}

// pause sleeps for a random duration in [ReplyDelayMin, ReplyDelayMax],
// respecting cancellation.
func (e *Engine) pause(ctx context.Context) {
	min, max := e.cfg.ReplyDelayMin, e.cfg.ReplyDelayMax
	if max <= 0 {
		return
	}
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Window exposes the session's history buffers (character deletion and
// tests).
func (e *Engine) Window() *history.Window { return e.window }

// Documents exposes the session's document manager.
func (e *Engine) Documents() *docs.Manager { return e.docs }

// Arbiter exposes the ownership monitor (one-shot checks in tests and
// the take-ownership paths).
func (e *Engine) Arbiter() *failover.Arbiter { return e.arbiter }

// PrincipalID returns the session principal this engine acts as.
func (e *Engine) PrincipalID() string { return e.cfg.PrincipalID }

// RoomID returns the room this engine is bound to.
func (e *Engine) RoomID() string { return e.cfg.RoomID }

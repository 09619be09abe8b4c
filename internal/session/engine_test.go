package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fiddle-chat/agent/internal/docs"
	"fiddle-chat/agent/internal/llm"
	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/internal/transcript"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/pkg/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	return logger.New(cfg)
}

type engineFixture struct {
	engine *Engine
	store  *store.MemoryStore
	sink   *transcript.MemorySink
}

// newFixture builds an engine for principal p1 in room-1 whose OpenAI
// adapter talks to the given test server. Reply delays are zeroed so
// tests run instantly.
func newFixture(t *testing.T, providerURL string, keys map[models.Provider]string) *engineFixture {
	t.Helper()

	s := store.NewMemoryStore()
	s.SeedRoom(&models.Room{ID: "room-1"})

	log := testLogger()
	sec := secrets.NewStaticManager(keys)
	sink := &transcript.MemorySink{}

	registry := llm.NewRegistry(nil)
	if providerURL != "" {
		a, ok := registry.Adapter(models.ProviderOpenAI)
		require.True(t, ok)
		a.(*llm.OpenAIAdapter).BaseURL = providerURL
	}

	dm := docs.NewManager(s, sec, log, nil)
	e := NewEngine(Config{
		PrincipalID: "p1",
		RoomID:      "room-1",
	}, s, registry, sec, dm, sink, nil, log)

	return &engineFixture{engine: e, store: s, sink: sink}
}

func openAIStub(t *testing.T, reply string, requests *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if requests != nil {
			*requests = append(*requests, body)
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
}

func TestHandleUserMessageProducesReply(t *testing.T) {
	var requests []map[string]any
	srv := openAIStub(t, "hi there", &requests)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name:   "Bob",
		Prompt: "You are Bob.",
		Model:  "gpt-4o",
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	// Reply reached the transcript under the character's name
	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, "Bob", f.sink.Messages[0].Sender)
	assert.Equal(t, "hi there", f.sink.Messages[0].Content)
	assert.Equal(t, c.ID, f.sink.Messages[0].CharacterID)

	// History holds the attributed user entry then the reply
	entries := f.engine.Window().Entries("room-1", c.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.SpeakerUser, entries[0].Speaker)
	assert.Equal(t, "Alice: hello", entries[0].Text)
	assert.Equal(t, models.SpeakerAssistant, entries[1].Speaker)
	assert.Equal(t, "hi there", entries[1].Text)

	// LastResponseAt was recorded back to the room document
	room, err := f.store.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, room.Characters[0].LastResponseAt.IsZero())

	// Provider saw the attributed entry, not the bare text
	require.Len(t, requests, 1)
	msgs := requests[0]["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	assert.Equal(t, "Alice: hello", last["content"])
}

func TestHandleUserMessageRepliesInListOrder(t *testing.T) {
	srv := openAIStub(t, "ok", nil)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	for _, name := range []string{"First", "Second", "Third"} {
		_, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
			Name: name, Prompt: "p", Model: "gpt-4o",
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello all"))

	require.Len(t, f.sink.Messages, 3)
	assert.Equal(t, "First", f.sink.Messages[0].Sender)
	assert.Equal(t, "Second", f.sink.Messages[1].Sender)
	assert.Equal(t, "Third", f.sink.Messages[2].Sender)
}

func TestHandleUserMessageSkipsForeignAndInactive(t *testing.T) {
	srv := openAIStub(t, "ok", nil)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	mine, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Mine", Prompt: "p", Model: "gpt-4o",
	})
	require.NoError(t, err)

	// A character owned elsewhere and a suspended one
	room, err := f.store.Room(ctx, "room-1")
	require.NoError(t, err)
	room.Characters = append(room.Characters,
		models.Character{ID: "c-foreign", Name: "Foreign", Model: "gpt-4o", OwnerID: "p2", IsActive: true},
		models.Character{ID: "c-off", Name: "Off", Model: "gpt-4o", OwnerID: "p1", IsActive: false},
	)
	require.NoError(t, f.store.UpdateCharacters(ctx, "room-1", room.Characters))

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, mine.ID, f.sink.Messages[0].CharacterID)
}

func TestUnsupportedModelGetsFixedReply(t *testing.T) {
	f := newFixture(t, "", map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Llama", Prompt: "p", Model: "llama-2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderUnknown, c.Provider)

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, llm.UnsupportedReply, f.sink.Messages[0].Content)

	// The fixed reply still lands in history
	entries := f.engine.Window().Entries("room-1", c.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, llm.UnsupportedReply, entries[1].Text)
}

func TestMissingCredentialGetsApologyWithoutNetworkCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"choices":[{"message":{"content":"should not happen"}}]}`))
	}))
	defer srv.Close()

	// No OpenAI key configured
	f := newFixture(t, srv.URL, nil)
	ctx := context.Background()

	_, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "gpt-4o",
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, llm.ApologyReply, f.sink.Messages[0].Content)
	assert.False(t, called)
}

func TestProviderFailureGetsApology(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	_, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "gpt-4o",
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, llm.ApologyReply, f.sink.Messages[0].Content)
}

func TestCreateCharacterResolvesProviderOnce(t *testing.T) {
	f := newFixture(t, "", map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "claude-3-5-sonnet-20241022",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderAnthropic, c.Provider)
	assert.Equal(t, "p1", c.OwnerID)
	assert.True(t, c.IsActive)
}

func TestUpdateCharacterReResolvesProviderOnModelChange(t *testing.T) {
	f := newFixture(t, "", map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "gpt-4o",
	})
	require.NoError(t, err)
	require.Equal(t, models.ProviderOpenAI, c.Provider)

	updated, err := f.engine.UpdateCharacter(ctx, c.ID, models.UpdateCharacterRequest{
		Model: "qwen-turbo",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderQianwen, updated.Provider)

	// Name untouched by the partial update
	assert.Equal(t, "Bob", updated.Name)
}

func TestDeleteCharacterPurgesHistory(t *testing.T) {
	srv := openAIStub(t, "ok", nil)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "gpt-4o",
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))
	require.NotEmpty(t, f.engine.Window().Entries("room-1", c.ID))

	require.NoError(t, f.engine.DeleteCharacter(ctx, c.ID))

	assert.Empty(t, f.engine.Window().Entries("room-1", c.ID))
	chars, err := f.engine.Characters(ctx)
	require.NoError(t, err)
	assert.Empty(t, chars)
}

func TestToggleActiveSuspendsReplies(t *testing.T) {
	srv := openAIStub(t, "ok", nil)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "gpt-4o",
	})
	require.NoError(t, err)

	toggled, err := f.engine.ToggleActive(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))
	assert.Empty(t, f.sink.Messages)

	toggled, err = f.engine.ToggleActive(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)
}

func TestTakeOwnershipClaimsForeignCharacter(t *testing.T) {
	f := newFixture(t, "", map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	require.NoError(t, f.store.UpdateCharacters(ctx, "room-1", []models.Character{
		{ID: "c1", Name: "Bob", Model: "gpt-4o", OwnerID: "p2", IsActive: true},
	}))

	claimed, err := f.engine.TakeOwnership(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "p1", claimed.OwnerID)

	room, err := f.store.Room(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", room.Characters[0].OwnerID)
}

func TestKimiDispatchCarriesFileHandles(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"choices":[{"message":{"content":"grounded"}}]}`))
	}))
	defer srv.Close()

	f := newFixture(t, "", map[models.Provider]string{models.ProviderKimi: "k-test"})
	ctx := context.Background()

	// Point the Kimi adapter at the stub
	ka, ok := f.engineRegistryKimi()
	require.True(t, ok)
	ka.BaseURL = srv.URL

	c, err := f.engine.CreateCharacter(ctx, models.CreateCharacterRequest{
		Name: "Bob", Prompt: "p", Model: "moonshot-v1-8k",
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.Documents().Attach(ctx, "room-1", c.ID, models.UploadedDocument{
		ID:                 "d1",
		ProviderScope:      models.ProviderKimi,
		ProviderFileHandle: "file-abc",
	}))

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "what do the files say?"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, "grounded", f.sink.Messages[0].Content)

	ids, _ := captured["file_ids"].([]any)
	require.Len(t, ids, 1)
	assert.Equal(t, "file-abc", ids[0])
}

func TestDispatchHonorsStaleOwnershipView(t *testing.T) {
	srv := openAIStub(t, "still here", nil)
	defer srv.Close()

	mem := store.NewMemoryStore()
	mem.SeedRoom(&models.Room{ID: "room-1"})

	// p-a's view of the room still shows it as owner, while the live
	// document was since claimed by p-b.
	snap := &models.Room{ID: "room-1", Characters: []models.Character{
		{ID: "c1", Name: "Bob", Model: "gpt-4o", Provider: models.ProviderOpenAI, OwnerID: "p-a", IsActive: true},
	}}
	require.NoError(t, mem.UpdateCharacters(context.Background(), "room-1", []models.Character{
		{ID: "c1", Name: "Bob", Model: "gpt-4o", Provider: models.ProviderOpenAI, OwnerID: "p-b", IsActive: true},
	}))

	log := testLogger()
	sec := secrets.NewStaticManager(map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	sink := &transcript.MemorySink{}

	registry := llm.NewRegistry(nil)
	a, ok := registry.Adapter(models.ProviderOpenAI)
	require.True(t, ok)
	a.(*llm.OpenAIAdapter).BaseURL = srv.URL

	s := &staleViewStore{Store: mem, room: snap}
	e := NewEngine(Config{PrincipalID: "p-a", RoomID: "room-1"},
		s, registry, sec, docs.NewManager(s, sec, log, nil), sink, nil, log)

	require.NoError(t, e.HandleUserMessage(context.Background(), "Alice", "anyone there?"))

	// The session that believed it was owner still answers the pending
	// message, and its character-list write is just the next
	// last-write-wins update.
	require.Len(t, sink.Messages, 1)
	assert.Equal(t, "still here", sink.Messages[0].Content)

	room, err := mem.Room(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p-a", room.Characters[0].OwnerID)
}

func TestDispatchUsesResolvedProviderTag(t *testing.T) {
	srv := openAIStub(t, "via tag", nil)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	// The tag, not the model string, picks the adapter: this model
	// matches no prefix but the character was tagged at creation.
	require.NoError(t, f.store.UpdateCharacters(ctx, "room-1", []models.Character{
		{ID: "c1", Name: "Bob", Model: "custom-finetune-v3", Provider: models.ProviderOpenAI, OwnerID: "p1", IsActive: true},
	}))

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, "via tag", f.sink.Messages[0].Content)
}

func TestDispatchFallsBackToModelForUntaggedCharacter(t *testing.T) {
	srv := openAIStub(t, "via model", nil)
	defer srv.Close()

	f := newFixture(t, srv.URL, map[models.Provider]string{models.ProviderOpenAI: "sk-test"})
	ctx := context.Background()

	// Written by a collaborator that never tags providers
	require.NoError(t, f.store.UpdateCharacters(ctx, "room-1", []models.Character{
		{ID: "c1", Name: "Bob", Model: "gpt-4o", OwnerID: "p1", IsActive: true},
	}))

	require.NoError(t, f.engine.HandleUserMessage(ctx, "Alice", "hello"))

	require.Len(t, f.sink.Messages, 1)
	assert.Equal(t, "via model", f.sink.Messages[0].Content)
}

// staleViewStore serves a fixed room snapshot for reads while writes go
// through to the backing store.
type staleViewStore struct {
	store.Store
	room *models.Room
}

func (s *staleViewStore) Room(context.Context, string) (*models.Room, error) {
	cp := *s.room
	cp.Characters = append([]models.Character(nil), s.room.Characters...)
	return &cp, nil
}

func (f *engineFixture) engineRegistryKimi() (*llm.KimiAdapter, bool) {
	a, ok := f.engine.registry.Adapter(models.ProviderKimi)
	if !ok {
		return nil, false
	}
	ka, ok := a.(*llm.KimiAdapter)
	return ka, ok
}

package session

import (
	"context"
	"fmt"
	"time"

	"fiddle-chat/agent/internal/models"

	"github.com/google/uuid"
)

// CreateCharacter adds a character to the room, owned by this session.
// The provider tag is resolved from the model identifier here, once,
// so dispatch and upload checks never re-parse it.
func (e *Engine) CreateCharacter(ctx context.Context, req models.CreateCharacterRequest) (*models.Character, error) {
	room, err := e.store.Room(ctx, e.cfg.RoomID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	c := models.Character{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Prompt:    req.Prompt,
		Model:     req.Model,
		Provider:  models.ProviderFromModel(req.Model),
		AvatarURL: req.AvatarURL,
		OwnerID:   e.cfg.PrincipalID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	characters := append(room.Characters, c)
	if err := e.store.UpdateCharacters(ctx, e.cfg.RoomID, characters); err != nil {
		return nil, err
	}
	e.log.Info("character created", "character_id", c.ID, "model", c.Model, "provider", c.Provider)
	return &c, nil
}

// UpdateCharacter edits a character in place. Changing the model
// re-resolves the provider tag.
func (e *Engine) UpdateCharacter(ctx context.Context, characterID string, req models.UpdateCharacterRequest) (*models.Character, error) {
	var updated *models.Character
	err := e.mutateCharacter(ctx, characterID, func(c *models.Character) {
		if req.Name != "" {
			c.Name = req.Name
		}
		if req.Prompt != "" {
			c.Prompt = req.Prompt
		}
		if req.Model != "" {
			c.Model = req.Model
			c.Provider = models.ProviderFromModel(req.Model)
		}
		if req.AvatarURL != "" {
			c.AvatarURL = req.AvatarURL
		}
		c.UpdatedAt = time.Now()
		cp := *c
		updated = &cp
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCharacter removes a character and purges its documents and
// history buffer. Provider-side file storage is not retracted.
func (e *Engine) DeleteCharacter(ctx context.Context, characterID string) error {
	room, err := e.store.Room(ctx, e.cfg.RoomID)
	if err != nil {
		return err
	}

	characters := room.Characters[:0]
	found := false
	for _, c := range room.Characters {
		if c.ID == characterID {
			found = true
			continue
		}
		characters = append(characters, c)
	}
	if !found {
		return fmt.Errorf("character %s not found", characterID)
	}

	if err := e.store.UpdateCharacters(ctx, e.cfg.RoomID, characters); err != nil {
		return err
	}

	e.window.Clear(e.cfg.RoomID, characterID)
	e.docs.Forget(characterID)
	e.log.Info("character deleted", "character_id", characterID)
	return nil
}

// ToggleActive suspends or resumes generation for a character without
// deleting it.
func (e *Engine) ToggleActive(ctx context.Context, characterID string) (*models.Character, error) {
	var updated *models.Character
	err := e.mutateCharacter(ctx, characterID, func(c *models.Character) {
		c.IsActive = !c.IsActive
		c.UpdatedAt = time.Now()
		cp := *c
		updated = &cp
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TakeOwnership explicitly claims a character for this session,
// regardless of the current owner's liveness. Like the arbiter's
// reassignment it is a plain last-write-wins write.
func (e *Engine) TakeOwnership(ctx context.Context, characterID string) (*models.Character, error) {
	var updated *models.Character
	err := e.mutateCharacter(ctx, characterID, func(c *models.Character) {
		c.OwnerID = e.cfg.PrincipalID
		c.UpdatedAt = time.Now()
		cp := *c
		updated = &cp
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("ownership taken explicitly", "character_id", characterID)
	return updated, nil
}

// Characters returns the room's current character list.
func (e *Engine) Characters(ctx context.Context) ([]models.Character, error) {
	room, err := e.store.Room(ctx, e.cfg.RoomID)
	if err != nil {
		return nil, err
	}
	return room.Characters, nil
}

func (e *Engine) mutateCharacter(ctx context.Context, characterID string, mutate func(*models.Character)) error {
	room, err := e.store.Room(ctx, e.cfg.RoomID)
	if err != nil {
		return err
	}
	for i := range room.Characters {
		if room.Characters[i].ID == characterID {
			mutate(&room.Characters[i])
			return e.store.UpdateCharacters(ctx, e.cfg.RoomID, room.Characters)
		}
	}
	return fmt.Errorf("character %s not found", characterID)
}

// Package api exposes the session agent's management surface: character
// lifecycle, document attachment, message ingress and transcript reads.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "fiddle-chat/agent/pkg/errors"
	"fiddle-chat/agent/pkg/secrets"

	"fiddle-chat/agent/internal/models"
	"fiddle-chat/agent/internal/session"
	"fiddle-chat/agent/internal/transcript"
	"fiddle-chat/agent/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the agent's HTTP API. The engine is bound to a single
// (principal, room) pair; all routes act on that room.
type Handler struct {
	engine     *session.Engine
	transcript *transcript.Store
	secrets    secrets.Manager
	hub        session.Broadcaster
	log        *logger.Logger
}

func NewHandler(engine *session.Engine, ts *transcript.Store, sec secrets.Manager, hub session.Broadcaster, log *logger.Logger) *Handler {
	return &Handler{engine: engine, transcript: ts, secrets: sec, hub: hub, log: log}
}

// Register wires the API routes onto the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/characters", h.listCharacters)
	rg.POST("/characters", h.createCharacter)
	rg.PUT("/characters/:id", h.updateCharacter)
	rg.DELETE("/characters/:id", h.deleteCharacter)
	rg.POST("/characters/:id/toggle", h.toggleCharacter)
	rg.POST("/characters/:id/claim", h.claimCharacter)

	rg.GET("/characters/:id/documents", h.listDocuments)
	rg.POST("/characters/:id/documents", h.uploadDocument)
	rg.DELETE("/characters/:id/documents", h.clearDocuments)
	rg.DELETE("/characters/:id/documents/:docId", h.detachDocument)

	rg.GET("/messages", h.recentMessages)
	rg.POST("/messages", h.sendMessage)

	rg.GET("/providers", h.providerAvailability)
}

func (h *Handler) listCharacters(c *gin.Context) {
	characters, err := h.engine.Characters(c.Request.Context())
	if err != nil {
		c.Error(apperrors.NewInternalServerError("ROOM_READ_FAILED", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": characters})
}

func (h *Handler) createCharacter(c *gin.Context) {
	var req models.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}

	character, err := h.engine.CreateCharacter(c.Request.Context(), req)
	if err != nil {
		c.Error(apperrors.NewInternalServerError("CHARACTER_CREATE_FAILED", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, character)
}

func (h *Handler) updateCharacter(c *gin.Context) {
	var req models.UpdateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}

	character, err := h.engine.UpdateCharacter(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", err.Error()))
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) deleteCharacter(c *gin.Context) {
	if err := h.engine.DeleteCharacter(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleCharacter(c *gin.Context) {
	character, err := h.engine.ToggleActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", err.Error()))
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) claimCharacter(c *gin.Context) {
	character, err := h.engine.TakeOwnership(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", err.Error()))
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) listDocuments(c *gin.Context) {
	docs := h.engine.Documents().Documents(c.Request.Context(), h.engine.RoomID(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) uploadDocument(c *gin.Context) {
	characterID := c.Param("id")

	character, err := h.findCharacter(c.Request.Context(), characterID)
	if err != nil {
		c.Error(apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", err.Error()))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "file field is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	defer file.Close()

	dm := h.engine.Documents()
	doc, err := dm.Upload(c.Request.Context(), character.Model, fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"), fileHeader.Size, file)
	if err != nil {
		c.Error(apperrors.NewBadRequestError("DOCUMENT_UPLOAD_FAILED", err.Error()))
		return
	}

	if err := dm.Attach(c.Request.Context(), h.engine.RoomID(), characterID, *doc); err != nil {
		c.Error(apperrors.NewInternalServerError("DOCUMENT_ATTACH_FAILED", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) clearDocuments(c *gin.Context) {
	if err := h.engine.Documents().ClearAll(c.Request.Context(), h.engine.RoomID(), c.Param("id")); err != nil {
		c.Error(apperrors.NewInternalServerError("DOCUMENT_CLEAR_FAILED", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) detachDocument(c *gin.Context) {
	err := h.engine.Documents().Detach(c.Request.Context(), h.engine.RoomID(), c.Param("id"), c.Param("docId"))
	if err != nil {
		c.Error(apperrors.NewInternalServerError("DOCUMENT_DETACH_FAILED", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) recentMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := h.transcript.Recent(c.Request.Context(), h.engine.RoomID(), limit)
	if err != nil {
		c.Error(apperrors.NewInternalServerError("TRANSCRIPT_READ_FAILED", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// sendMessage records the user's message in the transcript immediately
// and processes character turns in the background: provider calls plus
// the inter-reply pauses can take many seconds.
func (h *Handler) sendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}

	userMsg := models.ChatMessage{
		ID:        uuid.New().String(),
		RoomID:    h.engine.RoomID(),
		Sender:    req.Sender,
		Content:   req.Content,
		Timestamp: time.Now(),
	}
	if err := h.transcript.Emit(c.Request.Context(), userMsg); err != nil {
		c.Error(apperrors.NewInternalServerError("TRANSCRIPT_WRITE_FAILED", err.Error()))
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(userMsg)
	}

	go func() {
		if err := h.engine.HandleUserMessage(context.Background(), req.Sender, req.Content); err != nil {
			h.log.LogError(err, "message processing failed", "sender", req.Sender)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": userMsg.ID})
}

func (h *Handler) providerAvailability(c *gin.Context) {
	c.JSON(http.StatusOK, secrets.CheckAvailability(h.secrets))
}

func (h *Handler) findCharacter(ctx context.Context, characterID string) (*models.Character, error) {
	characters, err := h.engine.Characters(ctx)
	if err != nil {
		return nil, err
	}
	for i := range characters {
		if characters[i].ID == characterID {
			return &characters[i], nil
		}
	}
	return nil, apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", "character not found")
}

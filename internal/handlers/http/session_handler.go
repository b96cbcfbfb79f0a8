package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"
	"livesession/pkg/errors"
	"livesession/pkg/utils"
	"livesession/pkg/validation"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes one session client over HTTP.
type SessionHandler struct {
	client ports.SessionClient
}

func NewSessionHandler(client ports.SessionClient) *SessionHandler {
	return &SessionHandler{client: client}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/session")
	{
		api.GET("", h.GetSession)
		api.POST("/connect", h.Connect)
		api.GET("/participants", h.ListParticipants)
		api.GET("/participants/:id", h.GetParticipant)
		api.GET("/messages", h.ListMessages)
		api.POST("/messages", h.SendMessage)
		api.POST("/drawing", h.SendDrawing)
		api.POST("/stream", h.StartStream)
		api.POST("/stream/:id/join", h.JoinStream)
		api.DELETE("/stream", h.EndStream)
	}
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.Snapshot())
}

// Connect starts a connection from Disconnected; it never waits for Live.
func (h *SessionHandler) Connect(c *gin.Context) {
	if h.client.State() == domain.StateClosed {
		c.Error(errors.NewServiceUnavailableError("session client is closed"))
		return
	}
	h.client.Connect()
	c.JSON(http.StatusAccepted, gin.H{"state": h.client.State()})
}

func (h *SessionHandler) ListParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": h.client.Participants()})
}

func (h *SessionHandler) GetParticipant(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateParticipantID(id); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	participant, ok := h.client.Snapshot().Participant(domain.ParticipantID(id))
	if !ok {
		c.Error(errors.NewNotFoundError("participant"))
		return
	}
	c.JSON(http.StatusOK, participant)
}

// ListMessages returns the transcript, or its last ?limit entries.
func (h *SessionHandler) ListMessages(c *gin.Context) {
	messages := h.client.Messages()

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.Error(errors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		if limit < len(messages) {
			messages = messages[len(messages)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	text := utils.SanitizeString(req.Message)
	if err := validation.ValidateChatMessage(text); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	h.respond(c, h.client.SendMessage(text), true)
}

func (h *SessionHandler) SendDrawing(c *gin.Context) {
	var req struct {
		DrawingData json.RawMessage `json:"drawingData" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	h.respond(c, h.client.SendDrawingUpdate(req.DrawingData), true)
}

func (h *SessionHandler) StartStream(c *gin.Context) {
	var req struct {
		Title           string `json:"title" binding:"required"`
		MaxParticipants int    `json:"maxParticipants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateStreamTitle(req.Title); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateMaxParticipants(req.MaxParticipants); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	h.respond(c, h.client.StartStream(req.Title, req.MaxParticipants), false)
}

func (h *SessionHandler) JoinStream(c *gin.Context) {
	streamID := c.Param("id")
	if err := validation.ValidateStreamID(streamID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	h.respond(c, h.client.JoinStream(domain.StreamID(streamID)), false)
}

func (h *SessionHandler) EndStream(c *gin.Context) {
	h.respond(c, h.client.EndStream(), true)
}

// respond maps a command result: written, not Live, or no stream to act on.
// A session still on its way to Live answers with a Retry-After hint.
func (h *SessionHandler) respond(c *gin.Context, sent, needsStream bool) {
	if sent {
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
		return
	}

	state := h.client.State()
	switch {
	case state != domain.StateLive:
		if state.Active() {
			c.Header("Retry-After", "1")
		}
		c.Error(errors.NewNotLiveError().WithContext("state", state.String()))
	case needsStream && h.client.StreamData() == nil:
		c.Error(errors.NewNotFoundError("stream"))
	default:
		c.Error(errors.NewInvalidInputError("command was not sent"))
	}
}

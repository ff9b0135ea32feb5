package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"waffle-chat/internal/envelope"
	"waffle-chat/internal/middleware"
	"waffle-chat/internal/observability"
	"waffle-chat/internal/repositories"
	"waffle-chat/internal/telemetry"
	"waffle-chat/internal/ws"
)

// MessageHandler stores and serves room messages. Content is opaque here;
// clients encrypt before sending.
type MessageHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
	now      func() time.Time
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		rooms:    rooms,
		messages: messages,
		hub:      hub,
		audit:    audit,
		now:      time.Now,
	}
}

// ListMessages handles GET /messages in insertion order.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	ctx := c.Request.Context()
	if err := checkAccess(ctx, h.rooms, room, middleware.UserEmail(c)); err != nil {
		refuse(c, err, room)
		return
	}

	msgs, err := h.messages.ListMessages(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("list messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	out := make([]envelope.Wire, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, envelope.ToWire(msg))
	}
	c.JSON(http.StatusOK, out)
}

// Send handles POST /send. Resending an id that is already stored returns
// the stored message instead of an error.
func (h *MessageHandler) Send(c *gin.Context) {
	var w envelope.Wire
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message payload"})
		return
	}

	room := strings.TrimSpace(w.RoomID)
	if room == "" {
		room = c.Query("room")
	}
	switch {
	case room == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomID is required"})
		return
	case w.Content == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	case w.SenderID == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "senderID is required"})
		return
	}

	ctx := c.Request.Context()
	if err := checkAccess(ctx, h.rooms, room, middleware.UserEmail(c)); err != nil {
		refuse(c, err, room)
		return
	}

	msg := envelope.FromWire(w)
	msg.RoomID = room
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()

	stored, err := h.messages.CreateMessage(ctx, msg)
	if errors.Is(err, repositories.ErrDuplicateMessage) {
		existing, getErr := h.messages.GetMessage(ctx, msg.ID)
		if getErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
			return
		}
		c.JSON(http.StatusOK, envelope.ToWire(existing))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room", room).Str("id", msg.ID).Msg("store message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
		return
	}

	h.hub.BroadcastNudge(room, ws.NudgeMessage)
	publishRoomEvent(c, observability.EventMessageSent, "message_sent", room, map[string]interface{}{"message_id": stored.ID})
	c.JSON(http.StatusCreated, envelope.ToWire(stored))
}

// Clear handles GET /clear and deletes every message of a room.
func (h *MessageHandler) Clear(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	ctx := c.Request.Context()
	if err := checkAccess(ctx, h.rooms, room, middleware.UserEmail(c)); err != nil {
		refuse(c, err, room)
		return
	}

	deleted, err := h.messages.ClearRoom(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("clear room failed")
		emitAudit(c, h.audit, "ERROR", "internal error", room)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear room"})
		return
	}

	h.hub.BroadcastNudge(room, ws.NudgeCleared)
	emitAudit(c, h.audit, "INFO", "room cleared", room)
	publishRoomEvent(c, observability.EventRoomCleared, "room_cleared", room, map[string]interface{}{
		"deleted": deleted,
		"user_id": c.Query("userId"),
	})
	c.JSON(http.StatusOK, gin.H{"room": room, "deleted": deleted})
}

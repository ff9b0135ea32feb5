package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"waffle-chat/internal/middleware"
	"waffle-chat/internal/models"
	"waffle-chat/internal/repositories"
	"waffle-chat/internal/telemetry"
	"waffle-chat/internal/ws"
)

// RoomHandler manages rooms and their member lists.
type RoomHandler struct {
	rooms repositories.RoomRepository
	hub   *ws.Hub
	audit *telemetry.AuditEmitter
}

// NewRoomHandler constructs a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, hub: hub, audit: audit}
}

// ListRooms handles GET /rooms. The default room is always first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	email := middleware.UserEmail(c)
	names, err := h.rooms.ListRoomsForUser(c.Request.Context(), email)
	if err != nil {
		log.Error().Err(err).Str("user", email).Msg("list rooms failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, models.WithDefaultRoom(names))
}

// CreateRoom handles POST /create-room. The creator always ends up in the
// member set.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomName is required"})
		return
	}
	if strings.EqualFold(name, models.DefaultRoom) {
		c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
		return
	}

	creator := models.NormalizeEmail(req.CreatorEmail)
	if creator == "" {
		creator = middleware.UserEmail(c)
	}
	if creator == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "creatorEmail is required"})
		return
	}

	members := models.MemberSet(creator, req.MemberEmails)
	room, err := h.rooms.CreateRoom(c.Request.Context(), name, creator, members)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
			return
		}
		log.Error().Err(err).Str("room", name).Msg("create room failed")
		emitAudit(c, h.audit, "ERROR", "internal error", name)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	emitAudit(c, h.audit, "INFO", "room created", room.Name)
	c.JSON(http.StatusCreated, gin.H{"roomName": room.Name, "members": members})
}

// EditMembers handles POST /edit-room-members. Only members may edit, and
// the editor stays in the room.
func (h *RoomHandler) EditMembers(c *gin.Context) {
	var req models.EditMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RoomID == models.DefaultRoom {
		c.JSON(http.StatusBadRequest, gin.H{"error": "members of the default room cannot be edited"})
		return
	}

	editor := models.NormalizeEmail(req.UserEmail)
	if editor == "" {
		editor = middleware.UserEmail(c)
	}

	ctx := c.Request.Context()
	if err := checkAccess(ctx, h.rooms, req.RoomID, editor); err != nil {
		refuse(c, err, req.RoomID)
		return
	}

	members := models.MemberSet(editor, req.NewMemberEmails)
	if err := h.rooms.ReplaceMembers(ctx, req.RoomID, members); err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("room", req.RoomID).Msg("replace members failed")
		emitAudit(c, h.audit, "ERROR", "internal error", req.RoomID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update members"})
		return
	}

	h.hub.BroadcastNudge(req.RoomID, ws.NudgeMembers)
	emitAudit(c, h.audit, "INFO", "room members edited", req.RoomID)
	c.JSON(http.StatusOK, gin.H{"roomName": req.RoomID, "members": members})
}

// RoomMembers handles GET /room-members.
func (h *RoomHandler) RoomMembers(c *gin.Context) {
	room := c.Query("roomId")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	ctx := c.Request.Context()
	if room == models.DefaultRoom {
		c.JSON(http.StatusOK, []string{})
		return
	}
	if err := checkAccess(ctx, h.rooms, room, middleware.UserEmail(c)); err != nil {
		refuse(c, err, room)
		return
	}

	members, err := h.rooms.ListMembers(ctx, room)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, members)
}

// refuse maps access errors to 404, 403 or 500.
func refuse(c *gin.Context, err error, room string) {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, errNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
	default:
		log.Error().Err(err).Str("room", room).Msg("access check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check access"})
	}
}

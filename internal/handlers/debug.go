package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"waffle-chat/internal/telemetry"
	"waffle-chat/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
//
// GET /debug/nudge?room=&type= pushes a nudge to the room's websocket
// subscribers without touching storage, so clients can be checked for a
// refetch. type is message (default), cleared or members.
func RegisterDebugRoutes(router *gin.Engine, hub *ws.Hub, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/nudge", func(c *gin.Context) {
		room := strings.TrimSpace(c.Query("room"))
		if room == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
			return
		}

		kind := c.DefaultQuery("type", ws.NudgeMessage)
		switch kind {
		case ws.NudgeMessage, ws.NudgeCleared, ws.NudgeMembers:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown nudge type"})
			return
		}

		subscribers := hub.Subscribers(room)
		hub.BroadcastNudge(room, kind)
		emitAudit(c, emitter, "DEBUG", "debug nudge "+kind, room)

		c.JSON(http.StatusOK, gin.H{"room": room, "type": kind, "subscribers": subscribers})
	})
}

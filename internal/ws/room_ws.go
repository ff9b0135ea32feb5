package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"waffle-chat/internal/middleware"
	"waffle-chat/internal/models"
	"waffle-chat/internal/observability"
)

// RoomAccess answers the membership questions the handshake needs.
type RoomAccess interface {
	RoomExists(ctx context.Context, name string) (bool, error)
	IsMember(ctx context.Context, room, email string) (bool, error)
}

// RoomWebSocketHandler upgrades room subscriptions.
type RoomWebSocketHandler struct {
	hub   *Hub
	rooms RoomAccess
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, rooms RoomAccess) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, rooms: rooms}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle serves GET /ws/rooms/:room. Everyone may watch the default room;
// other rooms require membership.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	room := c.Param("room")

	ctx, span := otel.Tracer("waffle-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	email := middleware.UserEmail(c)
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing userEmail"})
		return
	}

	if room != models.DefaultRoom {
		exists, err := h.rooms.RoomExists(ctx, room)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		member, err := h.rooms.IsMember(ctx, room, email)
		if err != nil || !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("room", room).Msg("websocket upgrade failed")
		return
	}

	client := observability.ClientFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserEmail:   email,
		Room:        room,
		DeviceID:    client.DeviceID,
		IP:          client.IP,
		UserAgent:   client.UserAgent,
		RequestID:   client.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(room, conn, info)

	observability.IncWSActive("room")
	publishWSEvent(ctx, "ws_connect", info, "")

	// The connection outlives the request, so events after this point use
	// a context detached from its cancellation.
	bg := context.WithoutCancel(ctx)
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(room, conn)
			observability.DecWSActive("room")
			publishWSEvent(bg, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(bg, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

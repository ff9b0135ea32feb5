package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"waffle-chat/internal/observability"
)

// Nudge kinds sent to room subscribers.
const (
	NudgeMessage = "message"
	NudgeCleared = "cleared"
	NudgeMembers = "members"
)

const writeWait = 5 * time.Second

// Nudge tells subscribers a room changed. It carries no message content;
// clients refetch over HTTP.
type Nudge struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type client struct {
	info ConnInfo
	// gorilla connections allow a single concurrent writer.
	writeMu sync.Mutex
}

// Hub maintains websocket subscribers per room.
type Hub struct {
	rooms map[string]map[*websocket.Conn]*client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]*client)}
}

// AddClient registers a websocket connection for room.
func (h *Hub) AddClient(room string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*websocket.Conn]*client)
	}
	info.Room = room
	h.rooms[room][conn] = &client{info: info}
}

// RemoveClient drops a connection from room.
func (h *Hub) RemoveClient(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Subscribers reports how many connections watch room.
func (h *Hub) Subscribers(room string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastNudge notifies every subscriber of room. Connections that fail
// to accept the write are closed and removed. A nil hub is a no-op.
func (h *Hub) BroadcastNudge(room, kind string) {
	if h == nil {
		return
	}

	h.mu.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.rooms[room]))
	for conn, cl := range h.rooms[room] {
		targets[conn] = cl
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	payload, _ := json.Marshal(Nudge{Type: kind, Room: room})
	for conn, cl := range targets {
		cl.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.TextMessage, payload)
		cl.writeMu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("room", room).Str("conn_id", cl.info.ConnID).Msg("websocket write error")
			conn.Close()
			h.RemoveClient(room, conn)
			publishWSEvent(context.Background(), "ws_error", cl.info, err.Error())
		}
	}
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent("room", event)

	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "room",
			"resource_id": info.Room,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_email": info.UserEmail,
			"device_id":  info.DeviceID,
			"ip":         info.IP,
			"user_agent": info.UserAgent,
		},
	}

	_ = observability.PublishEvent(ctx, routingKey(event),
		observability.NewEvent("ws_events", event, payload),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}

func routingKey(event string) string {
	switch event {
	case "ws_connect":
		return observability.EventWSConnect
	case "ws_disconnect":
		return observability.EventWSDisconnect
	default:
		return observability.EventWSError
	}
}

package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo describes one websocket subscriber for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserEmail   string
	Room        string
	DeviceID    string
	IP          string
	UserAgent   string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}

package observability

import "time"

// Routing keys for room lifecycle events.
const (
	EventWSConnect    = "ws.connect"
	EventWSDisconnect = "ws.disconnect"
	EventWSError      = "ws.error"
	EventMessageSent  = "room.message_sent"
	EventRoomCleared  = "room.cleared"
	EventSubscribed   = "newsletter.subscribed"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewEvent(eventType, name string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers[headerTraceID] = traceID
	}
	return headers
}

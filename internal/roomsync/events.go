package roomsync

// EventType names a change a UI may want to react to.
type EventType string

const (
	EventMessagesUpdated EventType = "messages_updated"
	EventRoomsUpdated    EventType = "rooms_updated"
	EventAccessDenied    EventType = "access_denied"
	EventRoomChanged     EventType = "room_changed"
	EventSendFailed      EventType = "send_failed"
)

// Event is delivered on Synchronizer.Events.
type Event struct {
	Type EventType
	Room string
	// MessageID is set for EventSendFailed.
	MessageID string
	Err       error
}

const eventBuffer = 64

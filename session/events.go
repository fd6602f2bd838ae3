package session

import "time"

// EventType defines the notifications an engine emits.
type EventType string

const (
	// EventConnected fires when the handshake (or a reconnect)
	// completes and the session is usable.
	EventConnected EventType = "session.connected"

	// EventDisconnected fires on explicit disconnect or an
	// unsuppressed transport loss. Never fires for transport noise
	// during a deliberate reconnect.
	EventDisconnected EventType = "session.disconnected"

	// EventRestorable fires for a previously-connected session loaded
	// from storage that is waiting for an explicit reconnect.
	EventRestorable EventType = "session.restorable"

	// EventRequestPending fires on the approver side when a validated
	// request takes the pending slot and awaits approve/reject.
	EventRequestPending EventType = "request.pending"
)

// Event is one notification on an engine's event channel.
type Event struct {
	Type      EventType
	SessionID string
	Time      time.Time

	// Request is set for EventRequestPending.
	Request *PendingRequest

	// Reason is set for EventDisconnected when the transport failed,
	// empty for explicit disconnects.
	Reason string
}

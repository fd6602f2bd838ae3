package session

import "context"

// Transport is the client-side contract with the untrusted relay. The
// relay groups messages into per-session rooms and never sees
// plaintext; availability and ordering are explicitly NOT guaranteed,
// the protocol correlates by id instead.
type Transport interface {
	// Join subscribes to a session room for one role and returns the
	// live room. The transport routes messages so a room only ever
	// delivers frames addressed to this role.
	Join(ctx context.Context, sessionID string, role Role) (Room, error)

	// URL identifies the relay endpoint; it is bound into connection
	// URIs and session tokens.
	URL() string
}

// Room is one joined session room.
type Room interface {
	// Send publishes a frame to the peer side of the room.
	Send(ctx context.Context, msg *WireMessage) error

	// Messages delivers inbound frames. No frames arrive after Leave;
	// the channel is not necessarily closed.
	Messages() <-chan *WireMessage

	// Down signals transport-level connection loss. The engine decides
	// whether it surfaces as a disconnect or is reconnect noise.
	Down() <-chan error

	// Leave unsubscribes. Safe to call more than once.
	Leave() error
}

// KV is the abstract key-value capability behind SessionStorage. All
// operations are fallible; the session layer degrades to no
// persistence on adapter failure instead of failing the session.
type KV interface {
	// Get returns the stored value and whether the key existed.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under a key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

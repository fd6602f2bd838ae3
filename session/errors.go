package session

import "errors"

// Sentinel errors surfaced by the session package. Callers should match
// with errors.Is; most are wrapped with additional context.
var (
	// ErrDecryptionFailed covers every envelope open failure: wrong key,
	// corrupted ciphertext and malformed input are deliberately
	// indistinguishable to the caller.
	ErrDecryptionFailed = errors.New("envelope decryption failed")

	// ErrNoPeerKey is returned when sealing or opening before the peer
	// public key has been bound.
	ErrNoPeerKey = errors.New("peer public key not bound")

	// ErrAlreadyBound is returned when a different peer public key has
	// already been bound to the encryption context.
	ErrAlreadyBound = errors.New("peer public key already bound")

	// ErrMalformedURI is returned for connection URIs that cannot be
	// decoded.
	ErrMalformedURI = errors.New("malformed connection URI")

	// ErrUnsupportedVersion is returned for connection URIs carrying a
	// protocol version this implementation does not speak.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrSigningFailed wraps failures of the external signing capability.
	ErrSigningFailed = errors.New("signing failed")

	// ErrRequestTimeout is returned when no matching response arrived
	// within the request timeout.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrConnectionClosed rejects in-flight requests when the session is
	// torn down underneath them.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNoSuchPendingRequest is returned by approve/reject when the id
	// does not match the pending slot.
	ErrNoSuchPendingRequest = errors.New("no such pending request")

	// ErrRequestExpired is returned by approve/reject when the pending
	// request outlived the configured pending TTL.
	ErrRequestExpired = errors.New("pending request expired")

	// ErrSessionClosed is returned for operations on a closed engine.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected is returned for operations that need an
	// established session.
	ErrNotConnected = errors.New("session not connected")

	// ErrInvalidState is returned for lifecycle calls that are not legal
	// in the engine's current state.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrStorageDisabled is returned by restore paths when no storage
	// adapter is configured.
	ErrStorageDisabled = errors.New("session storage not configured")
)

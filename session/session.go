// Package session implements an end-to-end encrypted pairing protocol
// between a requesting application (a dApp) and an approving wallet,
// carried over an untrusted relay. The relay only ever sees opaque
// ciphertext: both sides derive a shared AEAD key from an X25519
// exchange bootstrapped by a connection URI, and every request and
// response travels inside an authenticated envelope with replay
// protection. The approver proves its identity with a signed session
// token bound to the session parameters.
package session

// Role identifies which side of a session an engine drives.
type Role string

const (
	// RoleRequester is the application side: it creates sessions,
	// produces connection URIs and sends signing requests.
	RoleRequester Role = "requester"

	// RoleApprover is the wallet side: it joins sessions from a
	// connection URI, mints the session token and answers requests.
	RoleApprover Role = "approver"
)

// State is the lifecycle state of a session engine.
//
// Transitions:
//
//	idle -> handshaking          create / bootstrap started
//	handshaking -> connected     handshake completed
//	connected <-> reconnecting   explicit reconnect after restore
//	connected -> disconnected    disconnect() or unsuppressed transport loss
//	disconnected -> closed       terminal
type State string

const (
	StateIdle         State = "idle"
	StateHandshaking  State = "handshaking"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

// ChainType names the signature scheme family an approver signs with.
// The protocol treats it as an opaque label; it only has to match
// between the session token and the configured signer.
type ChainType string

const (
	ChainEd25519 ChainType = "ed25519"
	ChainEVM     ChainType = "evm"
)

// Peer describes the approver identity learned during the handshake.
type Peer struct {
	Address   string
	ChainType ChainType
	ChainID   string
}

// Info is a read-only snapshot of a session's public metadata.
type Info struct {
	SessionID string
	Role      Role
	State     State
	RelayURL  string
	AppURL    string
	Peer      Peer
}

package session

import (
	"context"
	"encoding/json"
)

// TokenSigner is the base signing capability every approver must
// supply: a long-term chain identity that can sign arbitrary messages.
// It mints the session token at handshake time and serves
// sign_message requests.
//
// Optional capabilities are separate interfaces discovered with type
// assertions, so a minimal signer stays minimal and the approval gate
// can reject operations the signer genuinely cannot perform instead of
// forcing every implementation to stub them.
type TokenSigner interface {
	// Address returns the approver's chain address.
	Address() string

	// ChainType names the signature scheme family of this signer.
	ChainType() ChainType

	// SignMessage signs an arbitrary message and returns an encoded
	// signature string.
	SignMessage(ctx context.Context, message []byte) (string, error)
}

// TransactionSigner is the optional capability behind sign_transaction.
type TransactionSigner interface {
	SignTransaction(ctx context.Context, tx json.RawMessage) (string, error)
}

// TransactionSender is the optional capability behind send_transaction:
// sign and submit, returning a transaction hash.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx json.RawMessage) (string, error)
}

// TokenVerifier checks a token signature against the chain's signature
// scheme. Chain-specific and external: the core never interprets
// signatures itself. A nil verifier skips the signature check and
// relies on field validation alone.
type TokenVerifier interface {
	VerifyToken(t *Token) error
}

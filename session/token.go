package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token is the approver-signed assertion binding a session to the
// approver identity and the parameters fixed at handshake time. It is
// minted once per session, immutable afterwards, and re-validated by
// the approver on every inbound request. The requester only stores and
// forwards it.
//
// The signature is produced by the approver's long-term chain key, not
// the ephemeral encryption keypair, so session authentication survives
// encryption key rotation and cannot be forged by an attacker who only
// controls the relay.
type Token struct {
	SessionID    string    `json:"session_id"`
	Address      string    `json:"address"`
	ChainType    ChainType `json:"chain_type"`
	AppURL       string    `json:"app_url,omitempty"`
	RelayURL     string    `json:"relay_url"`
	RequesterKey string    `json:"requester_key"`
	Timestamp    int64     `json:"timestamp_ms"`
	Signature    string    `json:"signature"`
}

// TokenParams are the session-side values bound into a minted token.
// The approver identity comes from the signer itself.
type TokenParams struct {
	SessionID    string
	AppURL       string
	RelayURL     string
	RequesterKey string
}

// MintToken builds the canonical message for the session parameters,
// signs it with the approver's long-term signing capability and stamps
// the current time. Signing failures propagate as ErrSigningFailed.
func MintToken(ctx context.Context, signer TokenSigner, p TokenParams) (*Token, error) {
	t := &Token{
		SessionID:    p.SessionID,
		Address:      signer.Address(),
		ChainType:    signer.ChainType(),
		AppURL:       p.AppURL,
		RelayURL:     p.RelayURL,
		RequesterKey: p.RequesterKey,
		Timestamp:    time.Now().UnixMilli(),
	}

	sig, err := signer.SignMessage(ctx, []byte(t.SigningMessage()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	t.Signature = sig
	return t, nil
}

// SigningMessage returns the canonical colon-joined concatenation the
// signature covers. Field order is fixed; changing it invalidates every
// token already in the wild.
func (t *Token) SigningMessage() string {
	return strings.Join([]string{
		t.SessionID,
		t.Address,
		string(t.ChainType),
		t.AppURL,
		t.RelayURL,
		t.RequesterKey,
		strconv.FormatInt(t.Timestamp, 10),
	}, ":")
}

// TokenExpectations are the live session bindings a token is checked
// against on every request.
type TokenExpectations struct {
	SessionID    string
	Address      string
	ChainType    ChainType
	RelayURL     string
	RequesterKey string
}

// Validate checks the token fields against the live session bindings
// and its timestamp against the replay window. Checks run in fixed
// order and short-circuit on the first failure; the returned reason
// names the failed check. A failed validation is an expected outcome,
// not an error. Signature verification is separate (TokenVerifier).
func (t *Token) Validate(expect TokenExpectations, window, skew time.Duration, now time.Time) (bool, string) {
	if t.SessionID != expect.SessionID {
		return false, "session id mismatch"
	}
	if !equalAddress(t.Address, expect.Address) {
		return false, "address mismatch"
	}
	if t.ChainType != expect.ChainType {
		return false, "chain type mismatch"
	}
	if t.RelayURL != expect.RelayURL {
		return false, "relay url mismatch"
	}
	if t.RequesterKey != expect.RequesterKey {
		return false, "requester key mismatch"
	}

	age := now.Sub(time.UnixMilli(t.Timestamp))
	if age > window {
		return false, "token outside replay window"
	}
	if age < -skew {
		return false, "token timestamp in the future"
	}
	return true, ""
}

// equalAddress compares approver addresses. Hex-addressed chains are
// case-insensitive (checksummed casing varies); everything else is an
// exact match.
func equalAddress(a, b string) bool {
	if a == b {
		return true
	}
	return isHexAddress(a) && isHexAddress(b) && strings.EqualFold(a, b)
}

func isHexAddress(s string) bool {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

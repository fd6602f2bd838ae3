// Package signer provides approver-side signing identities and token
// verifiers for the built-in chain types. Implementations satisfy the
// capability interfaces in the session package; anything chain-specific
// beyond signing stays out of the protocol core.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mesmerverse/walletbridge/session"
)

// Ed25519Signer is an in-process Ed25519 identity. The address is the
// hex-encoded public key, so tokens it mints are self-authenticating:
// a verifier recovers the key from the address alone.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	addr string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Ed25519Signer{
		priv: priv,
		pub:  pub,
		addr: hex.EncodeToString(pub),
	}, nil
}

// Ed25519FromSeed derives the signer from a 32-byte seed, for
// identities loaded from sealed storage.
func Ed25519FromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length: expected %d, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519Signer{
		priv: priv,
		pub:  pub,
		addr: hex.EncodeToString(pub),
	}, nil
}

// Address returns the hex-encoded public key.
func (s *Ed25519Signer) Address() string {
	return s.addr
}

// ChainType identifies the signature scheme.
func (s *Ed25519Signer) ChainType() session.ChainType {
	return session.ChainEd25519
}

// SignMessage signs an arbitrary message, returning the base64 raw
// Ed25519 signature.
func (s *Ed25519Signer) SignMessage(ctx context.Context, message []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, message)), nil
}

// SignTransaction signs the canonical transaction bytes. The payload
// is treated as opaque; chain adapters own the encoding.
func (s *Ed25519Signer) SignTransaction(ctx context.Context, tx json.RawMessage) (string, error) {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, tx)), nil
}

// PublicKey returns the verifying key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

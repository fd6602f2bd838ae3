package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/mesmerverse/walletbridge/session"
)

// Ed25519Verifier checks tokens minted by an Ed25519 signer. The
// address doubles as the public key, so no key distribution is needed.
type Ed25519Verifier struct{}

// VerifyToken recovers the public key from the token address and
// checks the signature over the canonical signing message.
func (Ed25519Verifier) VerifyToken(t *session.Token) error {
	pub, err := hex.DecodeString(t.Address)
	if err != nil {
		return fmt.Errorf("invalid address encoding: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length: expected %d, got %d", ed25519.PublicKeySize, len(pub))
	}

	sig, err := base64.StdEncoding.DecodeString(t.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length: expected %d, got %d", ed25519.SignatureSize, len(sig))
	}

	if !ed25519.Verify(pub, []byte(t.SigningMessage()), sig) {
		return fmt.Errorf("token signature does not verify")
	}
	return nil
}

// Verifiers routes token verification by the token's chain type.
// Ed25519 is built in; verifiers for externally-signed chains (EVM
// recovery needs a secp256k1 library) are registered by the host.
type Verifiers struct {
	mu      sync.RWMutex
	byChain map[session.ChainType]session.TokenVerifier
}

// NewVerifiers builds a registry with the built-in verifiers.
func NewVerifiers() *Verifiers {
	v := &Verifiers{byChain: make(map[session.ChainType]session.TokenVerifier)}
	v.Register(session.ChainEd25519, Ed25519Verifier{})
	return v
}

// Register adds or replaces the verifier for a chain type.
func (v *Verifiers) Register(chain session.ChainType, tv session.TokenVerifier) {
	v.mu.Lock()
	v.byChain[chain] = tv
	v.mu.Unlock()
}

// VerifyToken dispatches to the verifier registered for the token's
// chain type.
func (v *Verifiers) VerifyToken(t *session.Token) error {
	v.mu.RLock()
	tv, ok := v.byChain[t.ChainType]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no verifier for chain type %q", t.ChainType)
	}
	return tv.VerifyToken(t)
}

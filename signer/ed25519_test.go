package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/mesmerverse/walletbridge/session"
)

func TestNewEd25519Signer(t *testing.T) {
	s, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	if s.ChainType() != session.ChainEd25519 {
		t.Errorf("Expected chain type ed25519, got %s", s.ChainType())
	}

	pub, err := hex.DecodeString(s.Address())
	if err != nil {
		t.Fatalf("Address is not hex: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		t.Errorf("Expected %d-byte key in address, got %d", ed25519.PublicKeySize, len(pub))
	}
	if !ed25519.PublicKey(pub).Equal(s.PublicKey()) {
		t.Error("Address does not encode the public key")
	}
}

func TestEd25519FromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}

	a, err := Ed25519FromSeed(seed)
	if err != nil {
		t.Fatalf("Failed to create signer from seed: %v", err)
	}
	b, err := Ed25519FromSeed(seed)
	if err != nil {
		t.Fatalf("Failed to create second signer from seed: %v", err)
	}

	if a.Address() != b.Address() {
		t.Error("Expected identical addresses from identical seeds")
	}

	if _, err := Ed25519FromSeed(make([]byte, 16)); err == nil {
		t.Fatal("Expected error for short seed")
	}
}

func TestEd25519SignMessage(t *testing.T) {
	ctx := context.Background()
	s, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	message := []byte("approve this")
	sig, err := s.SignMessage(ctx, message)
	if err != nil {
		t.Fatalf("Failed to sign message: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("Signature is not base64: %v", err)
	}
	if !ed25519.Verify(s.PublicKey(), message, raw) {
		t.Error("Signature does not verify")
	}
}

func TestEd25519SignTransaction(t *testing.T) {
	ctx := context.Background()
	s, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	tx := []byte(`{"to":"abc","amount":"10"}`)
	sig, err := s.SignTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("Signature is not base64: %v", err)
	}
	if !ed25519.Verify(s.PublicKey(), tx, raw) {
		t.Error("Transaction signature does not verify")
	}
}

func mintTestToken(t *testing.T, s *Ed25519Signer) *session.Token {
	t.Helper()
	token, err := session.MintToken(context.Background(), s, session.TokenParams{
		SessionID:    "11111111-2222-3333-4444-555555555555",
		AppURL:       "https://app.example.com",
		RelayURL:     "nats://relay.example.com:4222",
		RequesterKey: base64.StdEncoding.EncodeToString(make([]byte, 32)),
	})
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}
	return token
}

func TestEd25519VerifierAcceptsMintedToken(t *testing.T) {
	s, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	token := mintTestToken(t, s)

	if err := (Ed25519Verifier{}).VerifyToken(token); err != nil {
		t.Errorf("Expected minted token to verify, got %v", err)
	}
}

func TestEd25519VerifierRejectsTampering(t *testing.T) {
	s, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	verifier := Ed25519Verifier{}

	relayed := mintTestToken(t, s)
	relayed.RelayURL = "nats://evil.example.com:4222"
	if err := verifier.VerifyToken(relayed); err == nil {
		t.Error("Expected rejection for modified relay URL")
	}

	forged := mintTestToken(t, s)
	forged.Signature = base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))
	if err := verifier.VerifyToken(forged); err == nil {
		t.Error("Expected rejection for forged signature")
	}

	badAddr := mintTestToken(t, s)
	badAddr.Address = "not-hex!"
	if err := verifier.VerifyToken(badAddr); err == nil {
		t.Error("Expected rejection for non-hex address")
	}

	shortKey := mintTestToken(t, s)
	shortKey.Address = hex.EncodeToString(make([]byte, 16))
	if err := verifier.VerifyToken(shortKey); err == nil {
		t.Error("Expected rejection for short public key")
	}

	badSig := mintTestToken(t, s)
	badSig.Signature = "%%%"
	if err := verifier.VerifyToken(badSig); err == nil {
		t.Error("Expected rejection for malformed signature encoding")
	}
}

type alwaysOKVerifier struct{}

func (alwaysOKVerifier) VerifyToken(t *session.Token) error { return nil }

func TestVerifiersRouting(t *testing.T) {
	s, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	token := mintTestToken(t, s)

	v := NewVerifiers()
	if err := v.VerifyToken(token); err != nil {
		t.Errorf("Expected built-in ed25519 routing to verify, got %v", err)
	}

	evm := mintTestToken(t, s)
	evm.ChainType = session.ChainEVM
	if err := v.VerifyToken(evm); err == nil {
		t.Error("Expected error for chain type without a verifier")
	}

	v.Register(session.ChainEVM, alwaysOKVerifier{})
	if err := v.VerifyToken(evm); err != nil {
		t.Errorf("Expected registered verifier to be used, got %v", err)
	}
}

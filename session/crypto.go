package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// keyDomain separates session traffic keys from any other use of the
// same X25519 exchange. Changing it breaks every deployed peer.
const keyDomain = "walletbridge-session-v1"

const (
	keySize   = 32
	nonceSize = chacha20poly1305.NonceSizeX
)

// KeyPair is an X25519 keypair identifying one side of a session.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair generates a fresh X25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	private := make([]byte, keySize)
	if _, err := rand.Read(private); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &KeyPair{Public: public, Private: private}, nil
}

// Wipe zeroes the private key material.
func (k *KeyPair) Wipe() {
	if k != nil {
		zeroBytes(k.Private)
	}
}

// Envelope is the sealed payload carried by handshake bundles, requests
// and responses. It is the only thing the relay ever sees.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Timestamp  int64  `json:"timestamp_ms"`
}

// EncryptionContext holds one side's keypair and, once the peer public
// key is bound, the derived AEAD traffic key for the session. Safe for
// concurrent use.
type EncryptionContext struct {
	mu      sync.Mutex
	keyPair *KeyPair
	peer    []byte
	aeadKey []byte
}

// NewEncryptionContext creates a context around a keypair, freshly
// generated or imported from a stored session record. The peer key is
// bound later, when the handshake learns it.
func NewEncryptionContext(kp *KeyPair) *EncryptionContext {
	return &EncryptionContext{keyPair: kp}
}

// Export returns an independent copy of the keypair for persistence.
// The private half is sensitive; callers wipe their copy once it has
// been written out.
func (c *EncryptionContext) Export() *KeyPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &KeyPair{
		Public:  append([]byte(nil), c.keyPair.Public...),
		Private: append([]byte(nil), c.keyPair.Private...),
	}
}

// PublicKey returns this side's public key.
func (c *EncryptionContext) PublicKey() []byte {
	return c.keyPair.Public
}

// PeerKey returns the bound peer public key, or nil before binding.
func (c *EncryptionContext) PeerKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Bound reports whether the peer public key has been bound.
func (c *EncryptionContext) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aeadKey != nil
}

// BindPeer derives the session traffic key from our private key and the
// peer's public key. Binding the same key again is a no-op; binding a
// different key returns ErrAlreadyBound.
func (c *EncryptionContext) BindPeer(peerPublic []byte) error {
	if len(peerPublic) != keySize {
		return fmt.Errorf("invalid peer public key length %d", len(peerPublic))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer != nil {
		if subtle.ConstantTimeCompare(c.peer, peerPublic) == 1 {
			return nil
		}
		return ErrAlreadyBound
	}

	sharedSecret, err := curve25519.X25519(c.keyPair.Private, peerPublic)
	if err != nil {
		return fmt.Errorf("X25519 key exchange failed: %w", err)
	}
	// SECURITY: Zero shared secret after key derivation
	defer zeroBytes(sharedSecret)

	key, err := deriveTrafficKey(sharedSecret)
	if err != nil {
		return err
	}

	c.peer = append([]byte(nil), peerPublic...)
	c.aeadKey = key
	return nil
}

// Seal JSON-encodes v and encrypts it with the session traffic key
// under a fresh random nonce.
func (c *EncryptionContext) Seal(v any) (*Envelope, error) {
	c.mu.Lock()
	key := c.aeadKey
	c.mu.Unlock()
	if key == nil {
		return nil, ErrNoPeerKey
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &Envelope{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// Open decrypts an envelope and JSON-decodes the plaintext into out.
// Every decryption failure surfaces as ErrDecryptionFailed: a wrong
// key, a flipped bit and a malformed nonce are indistinguishable to
// the caller.
func (c *EncryptionContext) Open(env *Envelope, out any) error {
	c.mu.Lock()
	key := c.aeadKey
	c.mu.Unlock()
	if key == nil {
		return ErrNoPeerKey
	}

	if env == nil || len(env.Nonce) != nonceSize {
		return ErrDecryptionFailed
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to create AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// Wipe zeroes the traffic key and the private half of the keypair.
func (c *EncryptionContext) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	zeroBytes(c.aeadKey)
	c.aeadKey = nil
	c.keyPair.Wipe()
}

// deriveTrafficKey expands an X25519 shared secret into the session
// AEAD key with HKDF-SHA256 under the protocol domain.
func deriveTrafficKey(sharedSecret []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, sharedSecret, []byte(keyDomain), nil)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF expand failed: %w", err)
	}
	return key, nil
}

// zeroBytes overwrites sensitive byte slices
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

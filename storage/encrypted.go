package storage

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypted wraps any KV and seals every value with a data encryption
// key before it reaches the backend. Session records carry private
// session keys; with this wrapper a compromised bucket or database
// file yields only ciphertext. Decrypted values are cached so repeated
// reads (session restore scans, for one) skip the AEAD work.
type Encrypted struct {
	inner KV
	cache *LRUCache

	mu  sync.RWMutex
	dek []byte
}

// NewEncrypted wraps a backend with a 32-byte data encryption key.
func NewEncrypted(inner KV, dek []byte) (*Encrypted, error) {
	if len(dek) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("DEK must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Encrypted{
		inner: inner,
		cache: NewLRUCache(100),
		dek:   append([]byte(nil), dek...),
	}, nil
}

// Get retrieves and decrypts a value.
func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if cached, ok := e.cache.Get(key); ok {
		return cached, true, nil
	}

	ciphertext, found, err := e.inner.Get(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}

	plaintext, err := e.decrypt(ciphertext)
	if err != nil {
		return nil, false, fmt.Errorf("decryption failed for %q: %w", key, err)
	}

	e.cache.Put(key, plaintext)
	return plaintext, true, nil
}

// Set encrypts and stores a value.
func (e *Encrypted) Set(ctx context.Context, key string, value []byte) error {
	ciphertext, err := e.encrypt(value)
	if err != nil {
		return fmt.Errorf("encryption failed for %q: %w", key, err)
	}

	if err := e.inner.Set(ctx, key, ciphertext); err != nil {
		return err
	}

	e.cache.Put(key, value)
	return nil
}

// Remove deletes a key from the backend and the cache.
func (e *Encrypted) Remove(ctx context.Context, key string) error {
	if err := e.inner.Remove(ctx, key); err != nil {
		return err
	}
	e.cache.Delete(key)
	return nil
}

// Rekey swaps the data encryption key. Already-stored values remain
// sealed under the old key and become unreadable; callers migrating
// data must rewrite it themselves. The cache is dropped since its
// entries no longer correspond to anything decryptable.
func (e *Encrypted) Rekey(dek []byte) error {
	if len(dek) != chacha20poly1305.KeySize {
		return fmt.Errorf("DEK must be %d bytes", chacha20poly1305.KeySize)
	}

	e.mu.Lock()
	for i := range e.dek {
		e.dek[i] = 0
	}
	e.dek = append([]byte(nil), dek...)
	e.mu.Unlock()

	e.cache.Clear()
	return nil
}

// encrypt seals plaintext with a random nonce prepended to the result.
func (e *Encrypted) encrypt(plaintext []byte) ([]byte, error) {
	e.mu.RLock()
	aead, err := chacha20poly1305.NewX(e.dek)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a nonce-prefixed ciphertext.
func (e *Encrypted) decrypt(ciphertext []byte) ([]byte, error) {
	e.mu.RLock()
	aead, err := chacha20poly1305.NewX(e.dek)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := ciphertext[:nonceSize]
	return aead.Open(nil, nonce, ciphertext[nonceSize:], nil)
}

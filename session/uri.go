package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Connection URIs bootstrap a session out of band (QR code, deep
// link). The body is base64url-encoded JSON behind a fixed scheme tag.
const (
	// URIScheme prefixes every connection URI.
	URIScheme = "wb"

	// ProtocolVersion is the single version this implementation speaks.
	// Decode rejects anything else before touching key material.
	ProtocolVersion = 1
)

// ConnectionURI is the decoded bootstrap payload.
type ConnectionURI struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	RelayURL  string `json:"relay_url"`
	PublicKey []byte `json:"public_key"`
	AppURL    string `json:"app_url,omitempty"`
}

// Encode serializes the URI to its textual form.
func (u *ConnectionURI) Encode() (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("failed to marshal connection URI: %w", err)
	}
	return URIScheme + ":" + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeURI parses a textual connection URI. The version check runs
// before any field is consumed so that no cryptographic material is
// ever derived from a URI this implementation does not understand.
func DecodeURI(s string) (*ConnectionURI, error) {
	body, ok := strings.CutPrefix(s, URIScheme+":")
	if !ok {
		return nil, fmt.Errorf("%w: missing %q scheme", ErrMalformedURI, URIScheme)
	}

	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}

	var u ConnectionURI
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}

	if u.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, support %d", ErrUnsupportedVersion, u.Version, ProtocolVersion)
	}

	if u.SessionID == "" || u.RelayURL == "" {
		return nil, fmt.Errorf("%w: missing session id or relay url", ErrMalformedURI)
	}
	if len(u.PublicKey) != keySize {
		return nil, fmt.Errorf("%w: bad public key length %d", ErrMalformedURI, len(u.PublicKey))
	}

	return &u, nil
}

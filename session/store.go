package session

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
)

// Records live under sessions/<id>. The KV capability has no scan, so
// an index key carries the id list for enumeration.
const (
	recordKeyPrefix = "sessions/"
	indexKey        = "sessions/_index"
)

// Record is the persisted form of one session: everything needed to
// resume after a process restart except the approver's signer, which
// cannot be persisted.
type Record struct {
	SessionID     string    `cbor:"session_id"`
	Role          Role      `cbor:"role"`
	RelayURL      string    `cbor:"relay_url"`
	AppURL        string    `cbor:"app_url,omitempty"`
	PublicKey     []byte    `cbor:"public_key"`
	PrivateKey    []byte    `cbor:"private_key"`
	PeerPublicKey []byte    `cbor:"peer_public_key,omitempty"`
	PeerAddress   string    `cbor:"peer_address,omitempty"`
	ChainType     ChainType `cbor:"chain_type,omitempty"`
	ChainID       string    `cbor:"chain_id,omitempty"`
	Token         *Token    `cbor:"token,omitempty"`
	Connected     bool      `cbor:"connected"`
	UpdatedAt     int64     `cbor:"updated_at"`
}

// Store persists session records through a KV adapter, CBOR-encoded.
// A nil Store is valid and drops every operation: persistence is
// strictly optional, and adapter failures degrade to "no persistence"
// with a warning instead of failing the session.
type Store struct {
	kv  KV
	log zerolog.Logger
}

// NewStore wraps a KV adapter. Returns nil for a nil adapter, which
// disables persistence entirely.
func NewStore(kv KV, log zerolog.Logger) *Store {
	if kv == nil {
		return nil
	}
	return &Store{kv: kv, log: log}
}

// Save upserts a record and keeps the id index current.
func (s *Store) Save(ctx context.Context, rec *Record) {
	if s == nil {
		return
	}

	rec.UpdatedAt = time.Now().UnixMilli()
	data, err := cbor.Marshal(rec)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", rec.SessionID).
			Msg("Failed to encode session record")
		return
	}

	if err := s.kv.Set(ctx, recordKeyPrefix+rec.SessionID, data); err != nil {
		s.log.Warn().Err(err).Str("session_id", rec.SessionID).
			Msg("Failed to persist session record - continuing without persistence")
		return
	}

	s.addToIndex(ctx, rec.SessionID)
}

// Load fetches one record. Absent and corrupt records both come back
// as (nil, false); corruption is logged, never fatal.
func (s *Store) Load(ctx context.Context, sessionID string) (*Record, bool) {
	if s == nil {
		return nil, false
	}

	data, found, err := s.kv.Get(ctx, recordKeyPrefix+sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).
			Msg("Failed to read session record")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).
			Msg("Corrupt session record - treating as absent")
		return nil, false
	}
	return &rec, true
}

// Delete removes a record and its index entry.
func (s *Store) Delete(ctx context.Context, sessionID string) {
	if s == nil {
		return
	}

	if err := s.kv.Remove(ctx, recordKeyPrefix+sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).
			Msg("Failed to remove session record")
	}
	s.removeFromIndex(ctx, sessionID)
}

// List returns the ids of every stored session.
func (s *Store) List(ctx context.Context) []string {
	if s == nil {
		return nil
	}
	return s.readIndex(ctx)
}

// LoadAll fetches every stored record, skipping corrupted ones.
func (s *Store) LoadAll(ctx context.Context) []*Record {
	if s == nil {
		return nil
	}

	var records []*Record
	for _, id := range s.readIndex(ctx) {
		if rec, ok := s.Load(ctx, id); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (s *Store) readIndex(ctx context.Context) []string {
	data, found, err := s.kv.Get(ctx, indexKey)
	if err != nil || !found {
		return nil
	}
	var index []string
	if err := cbor.Unmarshal(data, &index); err != nil {
		s.log.Warn().Err(err).Msg("Corrupt session index - treating as empty")
		return nil
	}
	return index
}

func (s *Store) addToIndex(ctx context.Context, sessionID string) {
	index := s.readIndex(ctx)
	for _, id := range index {
		if id == sessionID {
			return
		}
	}
	index = append(index, sessionID)
	s.writeIndex(ctx, index)
}

func (s *Store) removeFromIndex(ctx context.Context, sessionID string) {
	index := s.readIndex(ctx)
	out := index[:0]
	for _, id := range index {
		if id != sessionID {
			out = append(out, id)
		}
	}
	if len(out) == len(index) {
		return
	}
	s.writeIndex(ctx, out)
}

func (s *Store) writeIndex(ctx context.Context, index []string) {
	data, err := cbor.Marshal(index)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode session index")
		return
	}
	if err := s.kv.Set(ctx, indexKey, data); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist session index")
	}
}

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mesmerverse/walletbridge/storage"
)

// errKV fails every operation, standing in for a broken backend.
type errKV struct{}

func (errKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("backend unavailable")
}

func (errKV) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("backend unavailable")
}

func (errKV) Remove(ctx context.Context, key string) error {
	return errors.New("backend unavailable")
}

func testRecord(id string) *Record {
	return &Record{
		SessionID:     id,
		Role:          RoleRequester,
		RelayURL:      "nats://relay.example.com:4222",
		AppURL:        "https://app.example.com",
		PublicKey:     make([]byte, 32),
		PrivateKey:    make([]byte, 32),
		PeerPublicKey: make([]byte, 32),
		PeerAddress:   "deadbeef",
		ChainType:     ChainEd25519,
		Token:         &Token{SessionID: id, Address: "deadbeef", Signature: "sig"},
		Connected:     true,
	}
}

func TestStore_NilStore(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	if s != nil {
		t.Fatal("Expected NewStore(nil) to return nil")
	}

	ctx := context.Background()
	s.Save(ctx, testRecord("s1"))
	if rec, ok := s.Load(ctx, "s1"); ok || rec != nil {
		t.Error("Expected nil store Load to report absent")
	}
	s.Delete(ctx, "s1")
	if ids := s.List(ctx); ids != nil {
		t.Errorf("Expected nil store List to return nil, got %v", ids)
	}
	if recs := s.LoadAll(ctx); recs != nil {
		t.Errorf("Expected nil store LoadAll to return nil, got %v", recs)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	s := NewStore(storage.NewMemory(), zerolog.Nop())
	ctx := context.Background()

	rec := testRecord("s1")
	s.Save(ctx, rec)

	loaded, ok := s.Load(ctx, "s1")
	if !ok {
		t.Fatal("Expected saved record to load")
	}
	if loaded.SessionID != "s1" || loaded.Role != RoleRequester {
		t.Errorf("Record fields did not survive: %+v", loaded)
	}
	if loaded.Token == nil || loaded.Token.Address != "deadbeef" {
		t.Error("Token did not survive the round trip")
	}
	if !loaded.Connected {
		t.Error("Connected flag did not survive")
	}
	if loaded.UpdatedAt == 0 {
		t.Error("Expected UpdatedAt to be stamped on save")
	}

	ids := s.List(ctx)
	if len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("Expected index [s1], got %v", ids)
	}

	// Saving again must not duplicate the index entry.
	s.Save(ctx, rec)
	if ids := s.List(ctx); len(ids) != 1 {
		t.Errorf("Expected index to stay deduplicated, got %v", ids)
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(storage.NewMemory(), zerolog.Nop())
	ctx := context.Background()

	s.Save(ctx, testRecord("s1"))
	s.Save(ctx, testRecord("s2"))

	s.Delete(ctx, "s1")

	if _, ok := s.Load(ctx, "s1"); ok {
		t.Error("Expected deleted record to be absent")
	}
	ids := s.List(ctx)
	if len(ids) != 1 || ids[0] != "s2" {
		t.Errorf("Expected index [s2] after delete, got %v", ids)
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, zerolog.Nop())
	ctx := context.Background()

	s.Save(ctx, testRecord("s1"))
	s.Save(ctx, testRecord("s2"))

	// Corrupt one record behind the store's back.
	if err := kv.Set(ctx, "sessions/s1", []byte("not cbor at all")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if rec, ok := s.Load(ctx, "s1"); ok || rec != nil {
		t.Error("Expected corrupt record to load as absent")
	}

	recs := s.LoadAll(ctx)
	if len(recs) != 1 || recs[0].SessionID != "s2" {
		t.Errorf("Expected LoadAll to skip the corrupt record, got %d records", len(recs))
	}
}

func TestStore_FailingBackend(t *testing.T) {
	s := NewStore(errKV{}, zerolog.Nop())
	ctx := context.Background()

	// Nothing here may panic or error out; persistence just degrades.
	s.Save(ctx, testRecord("s1"))
	if _, ok := s.Load(ctx, "s1"); ok {
		t.Error("Expected load from failing backend to report absent")
	}
	s.Delete(ctx, "s1")
	if ids := s.List(ctx); len(ids) != 0 {
		t.Errorf("Expected empty list from failing backend, got %v", ids)
	}
}

package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return s, path
}

func TestSQLiteSetGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLite(t)
	defer s.Close()

	record := []byte{0x00, 0xa1, 0xff, 0x00, 0x7f}
	if err := s.Set(ctx, "sessions/abc", record); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	value, found, err := s.Get(ctx, "sessions/abc")
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if !found {
		t.Fatal("Expected value to be found")
	}
	if !bytes.Equal(value, record) {
		t.Errorf("Expected %v, got %v", record, value)
	}
}

func TestSQLiteMiss(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLite(t)
	defer s.Close()

	value, found, err := s.Get(ctx, "no-such-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected miss for absent key")
	}
	if value != nil {
		t.Errorf("Expected nil value on miss, got %v", value)
	}
}

func TestSQLiteUpsert(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLite(t)
	defer s.Close()

	if err := s.Set(ctx, "k", []byte("old")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("new")); err != nil {
		t.Fatalf("Failed to overwrite value: %v", err)
	}

	value, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(value, []byte("new")) {
		t.Errorf("Expected 'new', got '%s'", value)
	}
}

func TestSQLiteRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLite(t)
	defer s.Close()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Failed to remove key: %v", err)
	}

	_, found, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected key to be gone after remove")
	}

	if err := s.Remove(ctx, "k"); err != nil {
		t.Errorf("Expected nil error removing absent key, got %v", err)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestSQLite(t)

	if err := s.Set(ctx, "sessions/abc", []byte("survives")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close storage: %v", err)
	}

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer reopened.Close()

	value, found, err := reopened.Get(ctx, "sessions/abc")
	if err != nil {
		t.Fatalf("Failed to get value after reopen: %v", err)
	}
	if !found {
		t.Fatal("Expected value to survive reopen")
	}
	if !bytes.Equal(value, []byte("survives")) {
		t.Errorf("Expected 'survives', got '%s'", value)
	}
}

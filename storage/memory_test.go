package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "sessions/abc", []byte("record-1")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	value, found, err := m.Get(ctx, "sessions/abc")
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if !found {
		t.Fatal("Expected value to be found")
	}
	if !bytes.Equal(value, []byte("record-1")) {
		t.Errorf("Expected 'record-1', got '%s'", value)
	}
}

func TestMemoryMiss(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value, found, err := m.Get(ctx, "no-such-key")
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

func TestMemoryOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "k", []byte("old")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := m.Set(ctx, "k", []byte("new")); err != nil {
		t.Fatalf("Failed to overwrite value: %v", err)
	}

	value, _, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(value, []byte("new")) {
		t.Errorf("Expected 'new', got '%s'", value)
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", m.Len())
	}
}

func TestMemoryRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Failed to remove key: %v", err)
	}

	_, found, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected key to be gone after remove")
	}

	// Removing an absent key is a no-op
	if err := m.Remove(ctx, "k"); err != nil {
		t.Errorf("Expected nil error removing absent key, got %v", err)
	}
}

func TestMemoryCopySemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	input := []byte("original")
	if err := m.Set(ctx, "k", input); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	// Mutating the caller's slice must not affect the stored value
	input[0] = 'X'

	value, _, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(value, []byte("original")) {
		t.Errorf("Stored value was mutated through caller slice: got '%s'", value)
	}

	// Mutating the returned slice must not affect the stored value
	value[0] = 'Y'

	again, _, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("Stored value was mutated through returned slice: got '%s'", again)
	}
}

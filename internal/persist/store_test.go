package persist

import (
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/deskpilot/core"
	"pkt.systems/deskpilot/schema"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	record := core.ContinuityRecord{
		ConversationID: "conv-1",
		InstanceKind:   schema.InstanceBrowser,
		StreamURL:      "https://stream.example/abc",
	}
	if err := store.Save(record); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected a stored record")
	}
	if loaded != record {
		t.Fatalf("round trip mismatch: %+v != %+v", loaded, record)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected a miss for a fresh store")
	}
}

func TestClearRemovesRecord(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(core.ContinuityRecord{ConversationID: "conv-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatalf("expected record to be gone after clear")
	}
	// Clearing an already-empty store is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
}

func TestLoadCorruptRecordFails(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Load(); err == nil {
		t.Fatalf("expected error for corrupt record")
	}
}

func TestSaveCreatesPrivateFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(core.ContinuityRecord{ConversationID: "conv-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "session.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

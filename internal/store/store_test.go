package store

import (
	"path/filepath"
	"testing"

	"perpquoter/pkg/money"
)

func TestSaveAndLoadSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	snap := Snapshot{
		NextClientID:  42,
		Position:      money.FromFloat(10.5),
		EntryPrice:    money.FromFloat(2000),
		LastAuctionID: 7,
	}

	if err := s.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil")
	}

	if loaded.NextClientID != snap.NextClientID {
		t.Errorf("NextClientID = %d, want %d", loaded.NextClientID, snap.NextClientID)
	}
	if !loaded.Position.Equal(snap.Position) {
		t.Errorf("Position = %s, want %s", loaded.Position, snap.Position)
	}
	if loaded.LastAuctionID != snap.LastAuctionID {
		t.Errorf("LastAuctionID = %d, want %d", loaded.LastAuctionID, snap.LastAuctionID)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", loaded)
	}
}

func TestSaveSnapshotOverwrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_ = s.Save(Snapshot{NextClientID: 1})
	_ = s.Save(Snapshot{NextClientID: 2})

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NextClientID != 2 {
		t.Errorf("NextClientID = %d, want 2 (latest save)", loaded.NextClientID)
	}
}

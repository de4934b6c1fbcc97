package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dacapo/pkg/models"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s := NewStore(dbPath)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	s := newTestStore(t)

	var id string

	t.Run("AddAndGet", func(t *testing.T) {
		rec := models.Recording{
			Name:     "Scale run",
			Audio:    []byte{0x01, 0x02, 0x03},
			Duration: 42.5,
		}

		var err error
		id, err = s.Add(rec)
		if err != nil {
			t.Fatalf("Failed to add recording: %v", err)
		}
		if id == "" {
			t.Fatal("Expected a generated id")
		}

		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Failed to get recording: %v", err)
		}
		if got == nil {
			t.Fatal("Expected recording, got nil")
		}
		if got.Name != rec.Name {
			t.Errorf("Expected name %q, got %q", rec.Name, got.Name)
		}
		if got.Duration != rec.Duration {
			t.Errorf("Expected duration %v, got %v", rec.Duration, got.Duration)
		}
		if len(got.Audio) != len(rec.Audio) {
			t.Errorf("Expected %d audio bytes, got %d", len(rec.Audio), len(got.Audio))
		}
	})

	t.Run("HonorsCallerMintedID", func(t *testing.T) {
		minted := uuid.NewString()
		rec := models.Recording{ID: minted, Name: "other", Audio: []byte{0xff}}
		newID, err := s.Add(rec)
		if err != nil {
			t.Fatalf("Failed to add recording: %v", err)
		}
		if newID != minted {
			t.Errorf("Expected the caller's id %q to be kept, got %q", minted, newID)
		}

		got, err := s.Get(minted)
		if err != nil {
			t.Fatalf("Failed to get recording: %v", err)
		}
		if got == nil || got.ID != minted {
			t.Errorf("Expected recording stored under the caller's id")
		}
	})

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		got, err := s.Get("no-such-id")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil for missing id, got %+v", got)
		}
	})

	t.Run("UpdateRewritesMarkers", func(t *testing.T) {
		rec, err := s.Get(id)
		if err != nil || rec == nil {
			t.Fatalf("Failed to reload recording: %v", err)
		}

		rec.Markers = []models.LoopMarker{
			{ID: uuid.NewString(), Title: "00:05 ~ 00:10", A: 5, B: 10, CreatedAt: time.Now()},
			{ID: uuid.NewString(), Title: "00:20 ~ 00:30", A: 20, B: 30, CreatedAt: time.Now()},
		}
		rec.Name = "Scale run (slow)"
		if err := s.Update(*rec); err != nil {
			t.Fatalf("Failed to update recording: %v", err)
		}

		got, err := s.Get(id)
		if err != nil || got == nil {
			t.Fatalf("Failed to get updated recording: %v", err)
		}
		if got.Name != "Scale run (slow)" {
			t.Errorf("Expected updated name, got %q", got.Name)
		}
		if len(got.Markers) != 2 {
			t.Fatalf("Expected 2 markers, got %d", len(got.Markers))
		}
		if got.Markers[0].A != 5 || got.Markers[0].B != 10 {
			t.Errorf("Unexpected first marker: %+v", got.Markers[0])
		}

		// Rewrite with a shorter list; stale markers must not survive.
		got.Markers = got.Markers[:1]
		if err := s.Update(*got); err != nil {
			t.Fatalf("Failed to rewrite markers: %v", err)
		}
		again, err := s.Get(id)
		if err != nil || again == nil {
			t.Fatalf("Failed to reload: %v", err)
		}
		if len(again.Markers) != 1 {
			t.Errorf("Expected 1 marker after rewrite, got %d", len(again.Markers))
		}
	})

	t.Run("UpdateMissingFails", func(t *testing.T) {
		err := s.Update(models.Recording{ID: "no-such-id", Name: "x"})
		if !errors.Is(err, ErrOperationFailed) {
			t.Errorf("Expected ErrOperationFailed, got %v", err)
		}
	})

	t.Run("GetAllInsertionOrder", func(t *testing.T) {
		recs, err := s.GetAll()
		if err != nil {
			t.Fatalf("Failed to get all recordings: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("Expected 2 recordings, got %d", len(recs))
		}
		if recs[0].ID != id {
			t.Errorf("Expected first-added recording first, got %s", recs[0].ID)
		}
	})

	t.Run("DeleteCascadesMarkers", func(t *testing.T) {
		if err := s.Delete(id); err != nil {
			t.Fatalf("Failed to delete recording: %v", err)
		}
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != nil {
			t.Error("Expected recording to be gone")
		}

		// Deleting again is not an error.
		if err := s.Delete(id); err != nil {
			t.Errorf("Expected repeat delete to succeed, got %v", err)
		}
	})
}

func TestStoreReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s := NewStore(dbPath)
	id, err := s.Add(models.Recording{Name: "persisted", Audio: []byte{0x01}})
	if err != nil {
		t.Fatalf("Failed to add recording: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	// A second open runs the upgrade step again; it must be idempotent and
	// leave existing rows alone.
	reopened := NewStore(dbPath)
	defer reopened.Close()

	got, err := reopened.Get(id)
	if err != nil {
		t.Fatalf("Failed to get recording after reopen: %v", err)
	}
	if got == nil || got.Name != "persisted" {
		t.Errorf("Expected persisted recording after reopen, got %+v", got)
	}
}

func TestStoreUnavailable(t *testing.T) {
	// A directory path cannot be opened as a database file.
	s := NewStore(t.TempDir())
	defer s.Close()

	_, err := s.GetAll()
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}

package media

import (
	"os"
	"testing"
)

func TestHandleBroker(t *testing.T) {
	hb := NewHandleBroker(t.TempDir(), nil)
	defer hb.Close()

	t.Run("AcquireMaterializesBlob", func(t *testing.T) {
		h, err := hb.Acquire("rec-1", "take.wav", []byte("audio-bytes"))
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		data, err := os.ReadFile(h.Path)
		if err != nil {
			t.Fatalf("Handle file unreadable: %v", err)
		}
		if string(data) != "audio-bytes" {
			t.Errorf("Expected blob content, got %q", data)
		}
	})

	t.Run("ReacquireSameItemKeepsHandle", func(t *testing.T) {
		first, _ := hb.Acquire("rec-1", "take.wav", []byte("audio-bytes"))
		second, err := hb.Acquire("rec-1", "take.wav", []byte("audio-bytes"))
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if first.Path != second.Path {
			t.Error("Expected re-acquire of the live item to return the same handle")
		}
	})

	t.Run("AcquireSupersedesOldHandle", func(t *testing.T) {
		old, _ := hb.Acquire("rec-1", "take.wav", []byte("audio-bytes"))
		next, err := hb.Acquire("rec-2", "other.mp3", []byte("other"))
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if _, err := os.Stat(next.Path); err != nil {
			t.Errorf("Expected new handle to exist: %v", err)
		}
		if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
			t.Errorf("Expected superseded handle to be released")
		}
	})

	t.Run("CloseReleasesOutstandingHandle", func(t *testing.T) {
		h, _ := hb.Acquire("rec-3", "x.flac", []byte("bytes"))
		hb.Close()
		if _, err := os.Stat(h.Path); !os.IsNotExist(err) {
			t.Errorf("Expected handle released on close")
		}
	})
}

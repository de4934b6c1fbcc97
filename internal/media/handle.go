package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle is a playable, file-backed view of a recording's audio blob. It
// stays valid until released by its broker.
type Handle struct {
	RecordingID string
	Path        string
}

// HandleBroker materializes audio blobs into temp files the engine can
// open. Invariant: at most one live handle per displayed item. Acquire
// creates the new handle first and releases the superseded one only after
// the new one exists, so a consumer never observes a gap.
type HandleBroker struct {
	dir    string
	logger *logrus.Logger

	mu   sync.Mutex
	live *Handle
}

// NewHandleBroker creates a broker writing handles below dir. An empty dir
// falls back to the system temp directory.
func NewHandleBroker(dir string, logger *logrus.Logger) *HandleBroker {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &HandleBroker{dir: dir, logger: logger}
}

// Acquire materializes the blob for the given recording and supersedes the
// previously live handle. Re-acquiring the currently live recording returns
// the existing handle unchanged.
func (hb *HandleBroker) Acquire(recordingID, name string, blob []byte) (*Handle, error) {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if hb.live != nil && hb.live.RecordingID == recordingID {
		return hb.live, nil
	}

	f, err := os.CreateTemp(hb.dir, "dacapo-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("failed to materialize audio handle: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write audio handle: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write audio handle: %w", err)
	}

	superseded := hb.live
	hb.live = &Handle{RecordingID: recordingID, Path: f.Name()}
	if superseded != nil {
		hb.release(superseded)
	}

	hb.logger.WithFields(logrus.Fields{
		"recording_id": recordingID,
		"path":         hb.live.Path,
	}).Debug("Acquired audio handle")
	return hb.live, nil
}

// Close releases any outstanding handle.
func (hb *HandleBroker) Close() {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if hb.live != nil {
		hb.release(hb.live)
		hb.live = nil
	}
}

func (hb *HandleBroker) release(h *Handle) {
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		hb.logger.WithError(err).WithField("path", h.Path).Warn("Failed to release audio handle")
	}
}

package app

import (
	"fmt"
	"sync"

	"dacapo/internal/config"
	"dacapo/internal/importer"
	"dacapo/internal/library"
	"dacapo/internal/media"
	"dacapo/internal/player"
	"dacapo/internal/store"
	"dacapo/pkg/models"

	"github.com/sirupsen/logrus"
)

// App wires the store, library, importer and playback controller together
// and keeps the controller bound to whichever recording is selected.
type App struct {
	config   *config.Config
	logger   *logrus.Logger
	store    *store.Store
	library  *library.Library
	broker   *media.HandleBroker
	importer *importer.Importer
	watcher  *importer.Watcher

	mu         sync.Mutex
	controller *player.Controller
	boundID    string

	snapshots <-chan library.Snapshot
	done      chan struct{}
}

// NewApp creates the application session around an opened store.
func NewApp(cfg *config.Config, st *store.Store, logger *logrus.Logger) *App {
	lib := library.NewLibrary(st, logger)
	app := &App{
		config:   cfg,
		logger:   logger,
		store:    st,
		library:  lib,
		broker:   media.NewHandleBroker(cfg.Playback.HandleDir, logger),
		importer: importer.NewImporter(lib, cfg.Library.SupportedFormats, logger),
		done:     make(chan struct{}),
	}
	return app
}

// Library exposes the underlying library for command handling.
func (a *App) Library() *library.Library {
	return a.library
}

// Start loads persisted recordings, begins following selection changes and
// optionally starts watching the drop directory.
func (a *App) Start() error {
	if err := <-a.library.FetchAll(); err != nil {
		return fmt.Errorf("loading library: %w", err)
	}

	a.snapshots = a.library.Subscribe()
	go a.followSelection()

	if a.config.Library.WatchForChanges {
		w, err := importer.NewWatcher(a.importer, a.config.Library.WatchDir, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("Could not start file watcher")
		} else {
			a.watcher = w
			a.logger.WithField("dir", a.config.Library.WatchDir).Info("Watching for new audio files")
		}
	}

	// The initial selection arrives through a snapshot only if FetchAll
	// changed something, so bind whatever is current right away.
	if cur := a.library.Current(); cur != nil {
		a.rebind(cur, a.library.Snapshot())
	}
	return nil
}

// ScanWatchDir imports supported audio files already sitting in the drop
// directory. Files whose derived display name is already in the library
// are skipped, so repeated startups do not duplicate recordings.
func (a *App) ScanWatchDir() error {
	known := make(map[string]bool)
	for _, rec := range a.library.Snapshot().Items {
		known[rec.Name] = true
	}

	imported, err := a.importer.ScanDir(a.config.Library.WatchDir, known)
	if imported > 0 {
		a.logger.WithField("count", imported).Info("Imported recordings from watch directory")
	}
	return err
}

// Controller returns the controller bound to the current selection, or nil
// when the library is empty.
func (a *App) Controller() *player.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller
}

// Import brings a single audio file into the library and waits for it to be
// persisted.
func (a *App) Import(path string) error {
	done, err := a.importer.ImportFile(path)
	if err != nil {
		return err
	}
	return <-done
}

func (a *App) followSelection() {
	defer close(a.done)
	for snap := range a.snapshots {
		a.rebind(snap.Current, snap)
	}
}

// rebind swaps the playback controller when the selected recording changes.
// The new handle is acquired before the old controller is torn down so there
// is never a gap where playback state exists without a backing file.
func (a *App) rebind(cur *models.Recording, snap library.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cur == nil {
		if a.controller != nil {
			a.controller.Close()
			a.controller = nil
			a.boundID = ""
		}
		return
	}
	if cur.ID == a.boundID {
		return
	}

	handle, err := a.broker.Acquire(cur.ID, cur.Name, cur.Audio)
	if err != nil {
		a.logger.WithError(err).WithField("recording", cur.Name).Error("Could not acquire audio handle")
		return
	}

	if a.controller != nil {
		a.controller.Close()
	}

	index := 0
	for i, rec := range snap.Items {
		if rec.ID == cur.ID {
			index = i
			break
		}
	}

	transport := media.NewClockTransport(cur.Duration, media.DefaultTick)
	a.controller = player.NewController(transport, player.NewSourceItem(*cur, handle, index), a.library, a.logger)
	a.boundID = cur.ID
	a.logger.WithFields(logrus.Fields{
		"recording": cur.Name,
		"duration":  cur.Duration,
	}).Info("Bound recording for playback")
}

// Shutdown tears the session down in reverse construction order.
func (a *App) Shutdown() {
	a.logger.Info("Shutting down")

	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.snapshots != nil {
		a.library.Unsubscribe(a.snapshots)
		<-a.done
	}

	a.mu.Lock()
	if a.controller != nil {
		a.controller.Close()
		a.controller = nil
	}
	a.mu.Unlock()

	a.broker.Close()
	a.logger.Info("Shutdown complete")
}

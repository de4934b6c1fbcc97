package importer

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher imports audio files dropped into a watched directory.
type Watcher struct {
	importer *Importer
	watcher  *fsnotify.Watcher
	logger   *logrus.Logger
}

// NewWatcher starts watching dir for new audio files.
func NewWatcher(importer *Importer, dir string, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		importer: importer,
		watcher:  watcher,
		logger:   logger,
	}
	go w.watchFiles()

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	logger.WithField("watch_dir", dir).Info("Import watcher started")
	return w, nil
}

// watchFiles selects on watcher channels and dispatches events.
func (w *Watcher) watchFiles() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFileEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Import watcher error")
		}
	}
}

// handleFileEvent filters for newly created audio files.
func (w *Watcher) handleFileEvent(event fsnotify.Event) {
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	if event.Has(fsnotify.Create) && w.importer.IsAudioFile(event.Name) {
		go func(name string) {
			time.Sleep(500 * time.Millisecond) // ensure the file is fully written
			if _, err := w.importer.ImportFile(name); err != nil {
				w.logger.WithError(err).WithField("file_path", name).Error("Failed to import dropped file")
			}
		}(event.Name)
	}
}

// Close stops the watcher (idempotent).
func (w *Watcher) Close() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

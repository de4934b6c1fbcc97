// Package importer turns local audio files into library recordings. It is
// the file-selection collaborator of the core: it hands over an opaque blob
// plus a display name and performs no format validation beyond picking a
// duration probe by extension.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"dacapo/internal/library"
	"dacapo/internal/media"
	"dacapo/pkg/models"

	"github.com/sirupsen/logrus"
)

// Importer feeds imported audio into the library.
type Importer struct {
	library          *library.Library
	supportedFormats []string
	logger           *logrus.Logger
}

// NewImporter creates an importer accepting the given extensions (with
// leading dot, e.g. ".mp3").
func NewImporter(lib *library.Library, supportedFormats []string, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Importer{
		library:          lib,
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// IsAudioFile checks whether the path carries a supported extension.
func (im *Importer) IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range im.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// ImportFile reads the file and adds it to the library. The display name
// falls back from embedded tags to the bare filename. The returned channel
// resolves when persistence settles.
func (im *Importer) ImportFile(path string) (<-chan error, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return im.ImportBlob(filepath.Base(path), blob), nil
}

// ImportBlob adds an in-memory audio blob under the given file name.
func (im *Importer) ImportBlob(fileName string, blob []byte) <-chan error {
	return im.importProbed(fileName, blob, media.Probe(fileName, blob))
}

func (im *Importer) importProbed(fileName string, blob []byte, info media.Info) <-chan error {
	name := displayName(fileName, info)

	im.logger.WithFields(logrus.Fields{
		"file_name": fileName,
		"name":      name,
		"duration":  info.Duration,
	}).Info("Importing recording")

	return im.library.AddItem(models.Recording{
		Name:     name,
		Audio:    blob,
		Duration: info.Duration,
	})
}

// displayName is the library name an import ends up under: the embedded
// tag title when present, the bare file name otherwise.
func displayName(fileName string, info media.Info) string {
	if info.Title != "" {
		return info.Title
	}
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

// ScanDir imports every supported audio file under dir whose display name
// is not in known. Each candidate is probed before the check, so a tagged
// file is recognized under its embedded title rather than its file name
// and is not imported again on a later scan. Names imported during the
// scan join the set, collapsing duplicate files to one recording. Returns
// the number imported.
func (im *Importer) ScanDir(dir string, known map[string]bool) (int64, error) {
	if dir == "" {
		return 0, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	var mu sync.Mutex
	seen := make(map[string]bool, len(known))
	for name := range known {
		seen[name] = true
	}

	var wg sync.WaitGroup
	var imported int64
	jobs := make(chan string, 100)

	numWorkers := runtime.NumCPU()
	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				if im.scanFile(path, seen, &mu) {
					atomic.AddInt64(&imported, 1)
				}
				wg.Done()
			}
		}()
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !im.IsAudioFile(path) {
			return nil
		}
		wg.Add(1)
		jobs <- path
		return nil
	})

	close(jobs)
	wg.Wait()
	return atomic.LoadInt64(&imported), walkErr
}

// scanFile probes one candidate and imports it unless its display name is
// already taken.
func (im *Importer) scanFile(path string, seen map[string]bool, mu *sync.Mutex) bool {
	blob, err := os.ReadFile(path)
	if err != nil {
		im.logger.WithError(err).WithField("path", path).Error("Failed to read audio file")
		return false
	}
	base := filepath.Base(path)
	info := media.Probe(base, blob)
	name := displayName(base, info)

	mu.Lock()
	if seen[name] {
		mu.Unlock()
		im.logger.WithField("name", name).Debug("Skipping already imported recording")
		return false
	}
	seen[name] = true
	mu.Unlock()

	if err := <-im.importProbed(base, blob, info); err != nil {
		im.logger.WithError(err).WithField("path", path).Error("Import failed")
		return false
	}
	return true
}

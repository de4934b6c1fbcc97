// Package library keeps an in-memory mirror of the recording store plus the
// current-selection pointer. Mutations apply to the mirror first and persist
// in the background, so the presentation layer always sees a synchronous
// view of an asynchronous store. A failed persistence call rolls the mirror
// back to its pre-operation shape and records the error.
package library

import (
	"sync"
	"time"

	"dacapo/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Storage is the subset of the store the library drives.
type Storage interface {
	Add(rec models.Recording) (string, error)
	Update(rec models.Recording) error
	Delete(id string) error
	GetAll() ([]models.Recording, error)
}

// Snapshot is the published view of the library state.
type Snapshot struct {
	Items     []models.Recording
	Current   *models.Recording
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// Library mirrors the store in memory. All exported methods are safe for
// concurrent use; overlapping operations are not serialized against each
// other, the last one to resolve wins.
type Library struct {
	storage Storage
	logger  *logrus.Logger

	mu        sync.RWMutex
	items     []models.Recording
	currentID string
	loading   bool
	err       error
	listeners []chan Snapshot
}

// NewLibrary creates a library over the given storage. Call FetchAll to
// populate the mirror.
func NewLibrary(storage Storage, logger *logrus.Logger) *Library {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Library{
		storage:   storage,
		logger:    logger,
		listeners: make([]chan Snapshot, 0),
	}
}

// Snapshot returns a copy of the current library state.
func (l *Library) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Current returns a copy of the currently selected recording, or nil.
func (l *Library) Current() *models.Recording {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i := l.indexOfLocked(l.currentID); i >= 0 {
		rec := l.items[i].Clone()
		return &rec
	}
	return nil
}

// Subscribe adds a listener for state changes.
func (l *Library) Subscribe() <-chan Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Snapshot, 10) // buffered so a slow consumer cannot block mutations
	l.listeners = append(l.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (l *Library) Unsubscribe(ch <-chan Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, listener := range l.listeners {
		if listener == ch {
			close(listener)
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			break
		}
	}
}

// FetchAll loads every recording from the store, replacing the mirror
// wholesale. Runs once at startup; when the store is non-empty the first
// entry becomes the selection. The returned channel resolves when the load
// settles.
func (l *Library) FetchAll() <-chan error {
	done := make(chan error, 1)

	l.mu.Lock()
	l.loading = true
	l.err = nil
	l.notifyLocked()
	l.mu.Unlock()

	go func() {
		recs, err := l.storage.GetAll()

		l.mu.Lock()
		defer l.mu.Unlock()
		l.loading = false
		if err != nil {
			l.err = err
			l.logger.WithError(err).Error("Failed to load recordings")
		} else {
			l.items = recs
			l.currentID = ""
			if len(recs) > 0 {
				l.currentID = recs[0].ID
			}
		}
		l.notifyLocked()
		done <- err
	}()
	return done
}

// AddItem merges the partial recording with defaults, appends it to the
// mirror and selects it before the persistence call resolves. The id is
// minted here and passed through to the store, so the optimistic entry and
// the durable row agree on identity from the first snapshot; on failure the
// append is rolled back.
func (l *Library) AddItem(partial models.Recording) <-chan error {
	done := make(chan error, 1)

	cand := partial.Clone()
	cand.ID = uuid.NewString()
	if cand.CreatedAt.IsZero() {
		cand.CreatedAt = time.Now()
	}
	if cand.Markers == nil {
		cand.Markers = []models.LoopMarker{}
	}

	l.mu.Lock()
	prevCurrent := l.currentID
	l.items = append(l.items, cand)
	l.currentID = cand.ID
	l.loading = true
	l.err = nil
	l.notifyLocked()
	l.mu.Unlock()

	go func() {
		_, err := l.storage.Add(cand)

		l.mu.Lock()
		defer l.mu.Unlock()
		l.loading = false
		if err != nil {
			l.err = err
			l.logger.WithError(err).WithField("name", cand.Name).Error("Failed to persist new recording")
			if i := l.indexOfLocked(cand.ID); i >= 0 {
				l.items = append(l.items[:i], l.items[i+1:]...)
			}
			if l.currentID == cand.ID {
				l.currentID = prevCurrent
			}
		}
		l.notifyLocked()
		done <- err
	}()
	return done
}

// UpdateItem replaces the matching entry by id and selects it, then
// persists. On failure the previous entry is restored.
func (l *Library) UpdateItem(rec models.Recording) <-chan error {
	done := make(chan error, 1)

	l.mu.Lock()
	i := l.indexOfLocked(rec.ID)
	if i < 0 {
		l.mu.Unlock()
		done <- nil
		return done
	}
	prev := l.items[i].Clone()
	l.items[i] = rec.Clone()
	l.currentID = rec.ID
	l.loading = true
	l.err = nil
	l.notifyLocked()
	l.mu.Unlock()

	go func() {
		err := l.storage.Update(rec)

		l.mu.Lock()
		defer l.mu.Unlock()
		l.loading = false
		if err != nil {
			l.err = err
			l.logger.WithError(err).WithField("recording_id", rec.ID).Error("Failed to persist recording update")
			if j := l.indexOfLocked(rec.ID); j >= 0 {
				l.items[j] = prev
			}
		}
		l.notifyLocked()
		done <- err
	}()
	return done
}

// DeleteItem removes the entry from the mirror. When the removed entry was
// selected, the new first entry becomes the selection (or none when the
// list is empty). On failure the entry is reinserted at its old position.
func (l *Library) DeleteItem(id string) <-chan error {
	done := make(chan error, 1)

	l.mu.Lock()
	i := l.indexOfLocked(id)
	if i < 0 {
		l.mu.Unlock()
		done <- nil
		return done
	}
	removed := l.items[i].Clone()
	prevCurrent := l.currentID
	l.items = append(l.items[:i], l.items[i+1:]...)
	if l.currentID == id {
		l.currentID = ""
		if len(l.items) > 0 {
			l.currentID = l.items[0].ID
		}
	}
	l.loading = true
	l.err = nil
	l.notifyLocked()
	l.mu.Unlock()

	go func() {
		err := l.storage.Delete(id)

		l.mu.Lock()
		defer l.mu.Unlock()
		l.loading = false
		if err != nil {
			l.err = err
			l.logger.WithError(err).WithField("recording_id", id).Error("Failed to persist recording deletion")
			at := i
			if at > len(l.items) {
				at = len(l.items)
			}
			l.items = append(l.items[:at], append([]models.Recording{removed}, l.items[at:]...)...)
			l.currentID = prevCurrent
		}
		l.notifyLocked()
		done <- err
	}()
	return done
}

// SelectItem makes the recording with the given id the current selection.
// Unknown ids are ignored.
func (l *Library) SelectItem(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOfLocked(id) < 0 {
		return
	}
	l.currentID = id
	l.notifyLocked()
}

// SelectNext moves the selection to the next recording, wrapping to the
// first after the last.
func (l *Library) SelectNext() {
	l.stepSelection(1)
}

// SelectPrevious moves the selection to the previous recording, wrapping to
// the last before the first.
func (l *Library) SelectPrevious() {
	l.stepSelection(-1)
}

func (l *Library) stepSelection(delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return
	}
	i := l.indexOfLocked(l.currentID)
	if i < 0 {
		l.currentID = l.items[0].ID
	} else {
		i = (i + delta + len(l.items)) % len(l.items)
		l.currentID = l.items[i].ID
	}
	l.notifyLocked()
}

// DeleteMarker removes a committed loop marker from the current recording
// and persists the change. Unknown marker ids are ignored.
func (l *Library) DeleteMarker(markerID string) <-chan error {
	done := make(chan error, 1)

	l.mu.RLock()
	i := l.indexOfLocked(l.currentID)
	if i < 0 {
		l.mu.RUnlock()
		done <- nil
		return done
	}
	rec := l.items[i].Clone()
	l.mu.RUnlock()

	markers := rec.Markers[:0:0]
	for _, m := range rec.Markers {
		if m.ID != markerID {
			markers = append(markers, m)
		}
	}
	if len(markers) == len(rec.Markers) {
		done <- nil
		return done
	}
	rec.Markers = markers
	return l.UpdateItem(rec)
}

// snapshotLocked builds a published copy of the state. Must be called with
// the lock held.
func (l *Library) snapshotLocked() Snapshot {
	items := make([]models.Recording, len(l.items))
	copy(items, l.items)

	snap := Snapshot{
		Items:     items,
		Loading:   l.loading,
		Err:       l.err,
		UpdatedAt: time.Now(),
	}
	if i := l.indexOfLocked(l.currentID); i >= 0 {
		snap.Current = &items[i]
	}
	return snap
}

// notifyLocked sends the current snapshot to all subscribers. Must be
// called with the lock held. Full or closed channels are dropped.
func (l *Library) notifyLocked() {
	snap := l.snapshotLocked()
	for i := 0; i < len(l.listeners); i++ {
		select {
		case l.listeners[i] <- snap:
		default:
			close(l.listeners[i])
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			i--
		}
	}
}

func (l *Library) indexOfLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

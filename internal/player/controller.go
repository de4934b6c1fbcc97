// Package player owns one media transport binding at a time and enforces
// the A-B loop state machine over it. It derives a read-only status
// snapshot from the engine's pushed events and publishes it to subscribers;
// all transport mutation goes through the controller, never around it.
package player

import (
	"math"
	"sync"
	"time"

	"dacapo/internal/media"
	"dacapo/internal/timefmt"
	"dacapo/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Playback rate bounds; values outside are rejected, not clamped.
const (
	minRate = 0.0
	maxRate = 2.0
)

// Committer persists marker commits on the bound recording.
type Committer interface {
	Current() *models.Recording
	UpdateItem(rec models.Recording) <-chan error
}

// Controller binds to exactly one transport. Create one per bound
// recording and Close it before binding the next.
type Controller struct {
	transport media.Transport
	committer Committer
	source    SourceItem
	logger    *logrus.Logger

	mu        sync.RWMutex
	status    Status
	listeners []chan Status

	loopDone chan struct{}
}

// NewController binds a controller to the transport and starts consuming
// its event stream. The committer may be nil when marker commits are not
// needed (e.g. previews).
func NewController(transport media.Transport, source SourceItem, committer Committer, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	c := &Controller{
		transport: transport,
		committer: committer,
		source:    source,
		logger:    logger,
		status: Status{
			PlaybackRate: 1,
			Elapsed:      timefmt.Clock(0),
			UpdatedAt:    time.Now(),
		},
		listeners: make([]chan Status, 0),
		loopDone:  make(chan struct{}),
	}
	go c.consumeEvents()
	return c
}

// consumeEvents reacts to the engine's pushed cadence until the transport
// closes its stream.
func (c *Controller) consumeEvents() {
	defer close(c.loopDone)

	for ev := range c.transport.Events() {
		switch ev.Kind {
		case media.TimeUpdate:
			c.handleTimeUpdate(ev.Position)
		case media.Ended:
			c.handleEnded()
		case media.LoadedMetadata:
			c.handleLoadedMetadata(ev.Duration)
		}
	}
}

// handleTimeUpdate runs loop enforcement and republishes the derived
// display fields for the new playhead position.
func (c *Controller) handleTimeUpdate(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.IsLoop && c.status.ALoop != nil {
		a := *c.status.ALoop
		switch {
		case c.status.BLoop != nil && pos >= *c.status.BLoop:
			// Ran off the end of the window, replay from A.
			c.transport.Seek(a)
			pos = a
		case pos <= a:
			// Fell at or behind the start, e.g. after a manual seek.
			c.transport.Seek(a)
			pos = a
		}
	}

	c.setPositionLocked(pos)
	c.notifyLocked()
}

// handleEnded repositions the playhead for a staged loop but never resumes
// playback on its own; the user has to press play again.
func (c *Controller) handleEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.IsPlaying = false
	if c.status.IsLoop && c.status.ALoop != nil {
		c.transport.Seek(*c.status.ALoop)
		c.status.Position = *c.status.ALoop
		c.status.Fraction = 0
		c.status.Elapsed = timefmt.Clock(0)
	}
	c.notifyLocked()
}

func (c *Controller) handleLoadedMetadata(duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.IsPlaying = false
	c.status.Duration = duration
	c.setPositionLocked(0)
	c.notifyLocked()
}

// Status returns a copy of the current snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Source returns the descriptor of the bound recording.
func (c *Controller) Source() SourceItem {
	return c.source
}

// Duration returns the bound media duration in seconds.
func (c *Controller) Duration() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Duration
}

// Subscribe adds a listener for status changes.
func (c *Controller) Subscribe() <-chan Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Status, 10) // buffered so a slow consumer cannot block playback
	c.listeners = append(c.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Controller) Unsubscribe(ch <-chan Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			close(listener)
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			break
		}
	}
}

// TogglePlay starts or pauses playback.
func (c *Controller) TogglePlay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.IsPlaying {
		c.transport.Pause()
		c.status.IsPlaying = false
	} else {
		c.transport.Play()
		c.status.IsPlaying = true
	}
	c.notifyLocked()
}

// ToggleLoop flips loop enforcement. Staged points survive until they are
// individually toggled off or committed.
func (c *Controller) ToggleLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.IsLoop = !c.status.IsLoop
	c.notifyLocked()
}

// SetLoopA toggles the loop start point. Setting A at or after a staged B
// discards the stale B: the newer point wins.
func (c *Controller) SetLoopA(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.ALoop != nil {
		c.status.ALoop = nil
	} else if c.status.BLoop != nil && t >= *c.status.BLoop {
		c.status.ALoop = &t
		c.status.BLoop = nil
	} else {
		c.status.ALoop = &t
	}
	c.notifyLocked()
}

// SetLoopB toggles the loop end point. Setting B at or before a staged A is
// silently rejected so committed markers always satisfy a < b.
func (c *Controller) SetLoopB(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.BLoop != nil {
		c.status.BLoop = nil
	} else if c.status.ALoop != nil && t <= *c.status.ALoop {
		return
	} else {
		c.status.BLoop = &t
	}
	c.notifyLocked()
}

// MarkA toggles the loop start at the current playhead.
func (c *Controller) MarkA() {
	c.SetLoopA(c.transport.Position())
}

// MarkB toggles the loop end at the current playhead.
func (c *Controller) MarkB() {
	c.SetLoopB(c.transport.Position())
}

// SetLoop stages a committed marker's range for replay.
func (c *Controller) SetLoop(a, b float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.ALoop = &a
	c.status.BLoop = &b
	c.notifyLocked()
}

// SetMuted passes the mute flag through to the transport.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.SetMuted(muted)
	c.status.IsMuted = muted
	c.notifyLocked()
}

// SetPlaybackRate applies the rate when it is within [0, 2]; anything else
// is a no-op.
func (c *Controller) SetPlaybackRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setRateLocked(rate)
}

// AddPlaybackRate nudges the rate by delta. The arithmetic runs on integer
// cents so repeated 0.1 steps do not accumulate binary float drift.
func (c *Controller) AddPlaybackRate(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cents := math.Round(c.status.PlaybackRate*100) + math.Round(delta*100)
	c.setRateLocked(cents / 100)
}

// setRateLocked applies the [0, 2] clamp-as-reject. Must be called with the
// lock held.
func (c *Controller) setRateLocked(rate float64) {
	if rate < minRate || rate > maxRate {
		return
	}
	c.transport.SetRate(rate)
	c.status.PlaybackRate = rate
	c.notifyLocked()
}

// SeekTo moves the playhead, clamped to the media bounds, and republishes
// the derived display fields right away.
func (c *Controller) SeekTo(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if c.status.Duration > 0 && seconds > c.status.Duration {
		seconds = c.status.Duration
	}
	c.transport.Seek(seconds)
	c.setPositionLocked(seconds)
	c.notifyLocked()
}

// AddLoopMarker commits the staged A-B range as a named marker on the bound
// recording. No-op unless both points are staged; a marker with the same
// range already on the recording also makes this a no-op. The staged points
// are discarded on a successful commit.
func (c *Controller) AddLoopMarker() {
	c.mu.Lock()

	if c.status.ALoop == nil || c.status.BLoop == nil || c.committer == nil {
		c.mu.Unlock()
		return
	}
	a, b := *c.status.ALoop, *c.status.BLoop
	c.mu.Unlock()

	rec := c.committer.Current()
	if rec == nil {
		return
	}

	title := timefmt.Clock(a) + " ~ " + timefmt.Clock(b)
	if rec.MarkerByTitle(title) != nil {
		return
	}

	rec.Markers = append(rec.Markers, models.LoopMarker{
		ID:        uuid.NewString(),
		Title:     title,
		A:         a,
		B:         b,
		CreatedAt: time.Now(),
	})
	c.committer.UpdateItem(*rec)

	c.mu.Lock()
	c.status.ALoop = nil
	c.status.BLoop = nil
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"recording_id": rec.ID,
		"title":        title,
	}).Info("Committed loop marker")
}

// Close tears the binding down: playback is paused, the playhead reset to
// zero and the transport released. The controller never leaves the media
// source playing after disposal.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.transport.Pause()
	c.transport.Seek(0)
	c.status.IsPlaying = false
	c.setPositionLocked(0)
	c.notifyLocked()
	c.mu.Unlock()

	err := c.transport.Close()
	<-c.loopDone

	c.mu.Lock()
	for _, listener := range c.listeners {
		close(listener)
	}
	c.listeners = nil
	c.mu.Unlock()
	return err
}

// setPositionLocked updates the playhead plus the derived seek fill and
// elapsed display. Must be called with the lock held.
func (c *Controller) setPositionLocked(pos float64) {
	c.status.Position = pos
	if c.status.Duration > 0 {
		c.status.Fraction = pos / c.status.Duration
	} else {
		c.status.Fraction = 0
	}
	c.status.Elapsed = timefmt.Clock(pos)
}

// notifyLocked publishes a copy of the snapshot to all subscribers. Must be
// called with the lock held. Full or closed channels are dropped.
func (c *Controller) notifyLocked() {
	c.status.UpdatedAt = time.Now()
	snapshot := c.status
	for i := 0; i < len(c.listeners); i++ {
		select {
		case c.listeners[i] <- snapshot:
		default:
			close(c.listeners[i])
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			i--
		}
	}
}

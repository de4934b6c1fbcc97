package media

import (
	"sync"
	"time"
)

// DefaultTick is the cadence of the clock engine's time updates.
const DefaultTick = 250 * time.Millisecond

// ClockTransport is a wall-clock media engine: it advances a playhead in
// real time, scaled by the playback rate, and pushes events at its own
// cadence. It produces no sound; decoding and output belong to the host
// engine this package stands in for. The duration comes from probing the
// audio blob at import time.
type ClockTransport struct {
	mu       sync.Mutex
	pos      float64
	dur      float64
	rate     float64
	playing  bool
	muted    bool
	lastTick time.Time

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewClockTransport binds a clock engine to media of the given duration and
// starts its event stream. A LoadedMetadata event is pushed first.
func NewClockTransport(duration float64, tick time.Duration) *ClockTransport {
	if tick <= 0 {
		tick = DefaultTick
	}
	ct := &ClockTransport{
		dur:    duration,
		rate:   1,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go ct.run(tick)
	return ct
}

func (ct *ClockTransport) run(tick time.Duration) {
	defer close(ct.events)

	ct.emit(Event{Kind: LoadedMetadata, Duration: ct.Duration()})

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ct.done:
			return
		case now := <-ticker.C:
			for _, ev := range ct.advance(now) {
				ct.emit(ev)
			}
		}
	}
}

// advance moves the playhead according to elapsed wall time and returns the
// events to push.
func (ct *ClockTransport) advance(now time.Time) []Event {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.playing {
		ct.lastTick = now
		return nil
	}

	elapsed := now.Sub(ct.lastTick).Seconds()
	ct.lastTick = now
	ct.pos += elapsed * ct.rate

	if ct.dur > 0 && ct.pos >= ct.dur {
		ct.pos = ct.dur
		ct.playing = false
		return []Event{
			{Kind: TimeUpdate, Position: ct.pos, Duration: ct.dur},
			{Kind: Ended, Position: ct.pos, Duration: ct.dur},
		}
	}
	return []Event{{Kind: TimeUpdate, Position: ct.pos, Duration: ct.dur}}
}

func (ct *ClockTransport) emit(ev Event) {
	select {
	case ct.events <- ev:
	case <-ct.done:
	}
}

// Play resumes the clock.
func (ct *ClockTransport) Play() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if !ct.playing {
		ct.playing = true
		ct.lastTick = time.Now()
	}
}

// Pause halts the clock in place.
func (ct *ClockTransport) Pause() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.playing = false
}

// Position returns the current playhead.
func (ct *ClockTransport) Position() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.pos
}

// Seek moves the playhead, clamped to the media bounds.
func (ct *ClockTransport) Seek(seconds float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if ct.dur > 0 && seconds > ct.dur {
		seconds = ct.dur
	}
	ct.pos = seconds
}

// Duration returns the media duration.
func (ct *ClockTransport) Duration() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.dur
}

// SetRate sets the rate multiplier applied to wall time.
func (ct *ClockTransport) SetRate(rate float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.rate = rate
}

// SetMuted records the mute flag. The clock engine produces no audio, so
// there is nothing further to silence.
func (ct *ClockTransport) SetMuted(muted bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.muted = muted
}

// Events returns the push stream. Closed by Close.
func (ct *ClockTransport) Events() <-chan Event {
	return ct.events
}

// Close stops the clock and closes the event stream. Idempotent.
func (ct *ClockTransport) Close() error {
	ct.once.Do(func() { close(ct.done) })
	return nil
}

// Package media abstracts the host audio engine. The player controller
// drives a Transport and reacts to the event stream the engine pushes at
// its own cadence; the controller itself never polls.
package media

// EventKind discriminates engine events.
type EventKind int

const (
	// TimeUpdate is emitted on the engine's own tick while media is loaded.
	TimeUpdate EventKind = iota
	// Ended is emitted when playback ran off the end of the media.
	Ended
	// LoadedMetadata is emitted once the engine knows the media duration.
	LoadedMetadata
)

// Event is a single notification pushed by the engine.
type Event struct {
	Kind     EventKind
	Position float64 // current playhead in seconds
	Duration float64 // media duration in seconds
}

// Transport is the mutable face of one bound media source. Its transport
// properties are written exclusively by the player controller; everyone
// else reads the controller's published status instead.
type Transport interface {
	// Play starts or resumes playback.
	Play()
	// Pause halts playback without moving the playhead.
	Pause()
	// Position returns the current playhead in seconds.
	Position() float64
	// Seek moves the playhead, clamped to the media bounds.
	Seek(seconds float64)
	// Duration returns the media duration in seconds, 0 until known.
	Duration() float64
	// SetRate sets the playback rate multiplier.
	SetRate(rate float64)
	// SetMuted toggles audible output.
	SetMuted(muted bool)
	// Events returns the engine's push stream. The channel is closed by
	// Close.
	Events() <-chan Event
	// Close tears the binding down and releases engine resources.
	Close() error
}

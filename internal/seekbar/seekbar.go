// Package seekbar translates pointer gestures over a seek track into
// playhead position requests. Input arrives on an explicit event channel
// scoped to the handler, so drags keep tracking after the pointer leaves
// the track and every listener dies with the handler instead of leaking
// across track switches.
package seekbar

// PointerKind discriminates pointer events.
type PointerKind int

const (
	// Press starts a drag (mouse down / touch start).
	Press PointerKind = iota
	// Move continues a drag (mouse move / touch move).
	Move
	// Release ends a drag (mouse up / touch end).
	Release
	// Cancel aborts a drag (touch cancel).
	Cancel
)

// PointerEvent is one pointer sample in track-space coordinates.
type PointerEvent struct {
	Kind PointerKind
	X    float64 // pointer position along the axis the track lies on
}

// Geometry describes where the seek track sits on that axis.
type Geometry struct {
	Left  float64
	Width float64
}

// Seeker is the part of the player controller the handler drives.
type Seeker interface {
	SeekTo(seconds float64)
	Duration() float64
}

// Handler is the drag state machine: idle until a press, then every move
// seeks immediately with no debouncing, until release or cancel. A press
// followed directly by a release is a tap and seeks once.
type Handler struct {
	geom     Geometry
	seeker   Seeker
	dragging bool
}

// NewHandler creates a handler for a track with the given geometry.
func NewHandler(geom Geometry, seeker Seeker) *Handler {
	return &Handler{geom: geom, seeker: seeker}
}

// Dragging reports whether a drag is in progress.
func (h *Handler) Dragging() bool {
	return h.dragging
}

// Handle feeds one pointer event through the state machine.
func (h *Handler) Handle(ev PointerEvent) {
	switch ev.Kind {
	case Press:
		h.dragging = true
		h.seekToPointer(ev.X)
	case Move:
		if h.dragging {
			h.seekToPointer(ev.X)
		}
	case Release, Cancel:
		h.dragging = false
	}
}

// Run consumes pointer events until the channel is closed. Closing the
// channel is the deterministic teardown for the handler's input.
func (h *Handler) Run(events <-chan PointerEvent) {
	for ev := range events {
		h.Handle(ev)
	}
}

// seekToPointer maps the pointer position onto the media timeline and
// applies it immediately.
func (h *Handler) seekToPointer(x float64) {
	if h.geom.Width <= 0 {
		return
	}
	duration := h.seeker.Duration()
	target := (x - h.geom.Left) / h.geom.Width * duration
	if target < 0 {
		target = 0
	}
	if target > duration {
		target = duration
	}
	h.seeker.SeekTo(target)
}

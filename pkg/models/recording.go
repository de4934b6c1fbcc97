package models

import "time"

// Recording represents an imported audio file together with its committed
// loop markers. The audio payload itself lives in the store as a blob and is
// only materialized into a playable handle when the recording is bound to a
// player.
type Recording struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Audio     []byte       `json:"-"` // raw audio payload, never exposed to clients
	Duration  float64      `json:"duration"` // in seconds, probed at import
	Markers   []LoopMarker `json:"markers"`
	CreatedAt time.Time    `json:"createdAt"`
}

// LoopMarker is a named, committed A-B time range on a recording. The title
// is derived from the formatted boundaries, so two markers with the same
// title describe the same range.
type LoopMarker struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	A         float64   `json:"a"` // in seconds, always < B
	B         float64   `json:"b"` // in seconds
	CreatedAt time.Time `json:"createdAt"`
}

// MarkerByTitle returns the marker with the given title, or nil.
func (r *Recording) MarkerByTitle(title string) *LoopMarker {
	for i := range r.Markers {
		if r.Markers[i].Title == title {
			return &r.Markers[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the recording. The audio payload is shared
// since it is immutable after import.
func (r *Recording) Clone() Recording {
	out := *r
	out.Markers = make([]LoopMarker, len(r.Markers))
	copy(out.Markers, r.Markers)
	return out
}

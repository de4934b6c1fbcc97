package player

import (
	"time"

	"dacapo/internal/media"
	"dacapo/pkg/models"
)

// Status is the ephemeral snapshot of playback state published by the
// controller. ALoop and BLoop are staging points for a loop being
// positioned; committed loops live on the recording as markers.
type Status struct {
	IsPlaying    bool      `json:"isPlaying"`
	IsLoop       bool      `json:"isLoop"`
	IsMuted      bool      `json:"isMuted"`
	PlaybackRate float64   `json:"playbackRate"` // 0.0 to 2.0
	ALoop        *float64  `json:"aLoop"`        // in seconds
	BLoop        *float64  `json:"bLoop"`        // in seconds, > ALoop when both set
	Duration     float64   `json:"duration"`     // in seconds
	Position     float64   `json:"position"`     // playhead in seconds
	Fraction     float64   `json:"fraction"`     // seek bar fill, position/duration
	Elapsed      string    `json:"elapsed"`      // formatted position for display
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SourceItem describes the bound recording for the presentation layer.
type SourceItem struct {
	ID       string              `json:"id"`
	FileName string              `json:"fileName"`
	Handle   *media.Handle       `json:"-"`
	Markers  []models.LoopMarker `json:"markers"`
	Index    int                 `json:"index"` // position in the library list
}

// NewSourceItem builds the descriptor for a recording bound at the given
// library index.
func NewSourceItem(rec models.Recording, handle *media.Handle, index int) SourceItem {
	markers := make([]models.LoopMarker, len(rec.Markers))
	copy(markers, rec.Markers)
	return SourceItem{
		ID:       rec.ID,
		FileName: rec.Name,
		Handle:   handle,
		Markers:  markers,
		Index:    index,
	}
}

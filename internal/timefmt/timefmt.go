// Package timefmt formats playback positions for display and for marker
// titles. Marker title uniqueness relies on this formatting being
// deterministic, so keep it free of locale or rounding surprises.
package timefmt

import "fmt"

// Clock renders a position in seconds as "MM:SS", or "H:MM:SS" once the
// position reaches a full hour. Fractional seconds are truncated, not
// rounded. The input must be finite and >= 0.
func Clock(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

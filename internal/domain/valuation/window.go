package valuation

import (
	"time"

	"github.com/okian/milepost/internal/domain/model"
)

// Partition names.
const (
	WindowBestMatch       = "best_match"
	WindowTimeInsensitive = "time_insensitive"
)

// PartitionByWindow splits offers by whether they depart within the time
// window of original. selected names the partition to show first: best match
// when it has offers, otherwise time-insensitive when that does, otherwise "".
func (e *Engine) PartitionByWindow(offers []model.RawAwardOffer, original time.Time) (bestMatch, timeInsensitive []model.RawAwardOffer, selected string) {
	for _, o := range offers {
		d := o.Departure.Sub(original)
		if d < 0 {
			d = -d
		}
		if d <= e.window {
			bestMatch = append(bestMatch, o)
		} else {
			timeInsensitive = append(timeInsensitive, o)
		}
	}
	switch {
	case len(bestMatch) > 0:
		selected = WindowBestMatch
	case len(timeInsensitive) > 0:
		selected = WindowTimeInsensitive
	}
	return bestMatch, timeInsensitive, selected
}

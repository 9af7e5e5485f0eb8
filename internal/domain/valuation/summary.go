package valuation

import (
	"strings"
	"time"

	"github.com/okian/milepost/internal/domain/dedupe"
	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
)

// Summarize composes programs, cabin bests, savings flags and the window
// partition of the recommended program into one view. cashPrice is in the
// itinerary's currency; a non-positive value falls back to it.CashPrice.
func (e *Engine) Summarize(it model.Itinerary, offers []model.RawAwardOffer, cashPrice float64) types.Valuation {
	if cashPrice <= 0 {
		cashPrice = it.CashPrice
	}
	cash := e.toBase(cashPrice, it.Currency)

	v := types.Valuation{
		ItineraryID: it.ID,
		CashPrice:   roundCents(cash),
		Currency:    e.converter.Base(),
		Programs:    []types.ProgramView{},
		Cabins:      []types.CabinView{},
	}

	programs := e.Programs(offers, len(it.Slices))
	for _, p := range programs {
		v.Programs = append(v.Programs, types.ProgramView{
			Carrier:       p.Carrier,
			TotalMileage:  p.TotalMileage,
			TotalPrice:    p.TotalPrice,
			Match:         p.Match,
			SegmentCount:  p.SegmentCount,
			Complete:      p.Complete,
			Offers:        p.Offers,
			StrikeThrough: e.StrikeThrough(e.ProgramValue(p), cash),
		})
	}
	if len(v.Programs) > 0 {
		rec := v.Programs[0]
		v.Recommended = &rec
	}

	for _, cv := range e.BestByCabin(offers) {
		cv.SaveBadge, cv.Savings = e.SaveBadge(cv.Value, cash)
		v.Cabins = append(v.Cabins, cv)
	}

	if v.Recommended != nil {
		var alternates []model.RawAwardOffer
		for _, o := range offers {
			if strings.EqualFold(strings.TrimSpace(o.Carrier), v.Recommended.Carrier) && o.SegmentIndex == 0 {
				alternates = append(alternates, o)
			}
		}
		var original time.Time
		if seg, ok := it.FirstSegment(); ok {
			original = seg.Departure
		}
		v.Window.BestMatch, v.Window.TimeInsensitive, v.Window.Selected = e.PartitionByWindow(dedupe.Offers(alternates), original)
	}
	return v
}

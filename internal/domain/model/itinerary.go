// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// CarrierCodeLength is the length of an IATA airline designator.
const CarrierCodeLength = 2

// Segment is one flown leg of a slice.
type Segment struct {
	MarketingCarrier string    `json:"marketing_carrier"`
	OperatingCarrier string    `json:"operating_carrier,omitempty"`
	FlightNumber     string    `json:"flight_number"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	Departure        time.Time `json:"departure"`
	Arrival          time.Time `json:"arrival"`
	Cabin            string    `json:"cabin,omitempty"`
}

// Carrier returns the operating carrier, falling back to the marketing one.
func (s Segment) Carrier() string {
	if c := strings.TrimSpace(s.OperatingCarrier); c != "" {
		return strings.ToUpper(c)
	}
	return strings.ToUpper(strings.TrimSpace(s.MarketingCarrier))
}

// Slice is one directional portion of an itinerary (outbound, return).
type Slice struct {
	Segments []Segment `json:"segments"`
}

// Origin is the first segment's origin, or "" for an empty slice.
func (s Slice) Origin() string {
	if len(s.Segments) == 0 {
		return ""
	}
	return s.Segments[0].Origin
}

// Destination is the last segment's destination, or "" for an empty slice.
func (s Slice) Destination() string {
	if len(s.Segments) == 0 {
		return ""
	}
	return s.Segments[len(s.Segments)-1].Destination
}

// Departure is the first segment's departure time.
func (s Slice) Departure() time.Time {
	if len(s.Segments) == 0 {
		return time.Time{}
	}
	return s.Segments[0].Departure
}

// Itinerary is one cash-fare search result.
type Itinerary struct {
	ID        string  `json:"id"`
	Slices    []Slice `json:"slices"`
	CashPrice float64 `json:"cash_price"`
	Currency  string  `json:"currency"`
	Cabin     string  `json:"cabin,omitempty"`
}

// FirstSegment returns the first segment of the first slice.
func (it Itinerary) FirstSegment() (Segment, bool) {
	if len(it.Slices) == 0 || len(it.Slices[0].Segments) == 0 {
		return Segment{}, false
	}
	return it.Slices[0].Segments[0], true
}

// OperatingCarrier returns the carrier of the first segment and whether it is
// a valid two-letter code.
func (it Itinerary) OperatingCarrier() (string, bool) {
	seg, ok := it.FirstSegment()
	if !ok {
		return "", false
	}
	code := seg.Carrier()
	return code, len(code) == CarrierCodeLength
}

// SliceContext is the per-slice search context sent to the award provider.
type SliceContext struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Cabin       string `json:"cabin,omitempty"`
}

// SearchContext derives the award search context from an itinerary.
func (it Itinerary) SearchContext() []SliceContext {
	out := make([]SliceContext, 0, len(it.Slices))
	for _, sl := range it.Slices {
		if len(sl.Segments) == 0 {
			continue
		}
		cabin := sl.Segments[0].Cabin
		if cabin == "" {
			cabin = it.Cabin
		}
		out = append(out, SliceContext{
			Origin:      sl.Origin(),
			Destination: sl.Destination(),
			Date:        sl.Departure().Format(time.DateOnly),
			Cabin:       cabin,
		})
	}
	return out
}

package model

import "time"

// Shape identifies which upstream record shape an offer was decoded from.
type Shape string

const (
	ShapeDirect  Shape = "direct"
	ShapeSummary Shape = "summary"
)

// RawAwardOffer is one decoded award-provider option.
type RawAwardOffer struct {
	Carrier      string    `json:"carrier"`
	Mileage      float64   `json:"mileage"`
	Copay        float64   `json:"copay"`
	Currency     string    `json:"currency"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	Departure    time.Time `json:"departure"`
	Arrival      time.Time `json:"arrival"`
	Cabin        string    `json:"cabin"`
	Stops        []string  `json:"stops,omitempty"`
	FlightNumber string    `json:"flight_number"`
	// SegmentIndex is the slice of the itinerary this offer covers.
	SegmentIndex int   `json:"segment_index"`
	Exact        bool  `json:"exact"`
	Source       Shape `json:"source"`
}

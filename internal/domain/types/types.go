// Package types contains common types used across the application
package types

import "github.com/okian/milepost/internal/domain/model"

// Progress is the aggregate enrichment state reported to observers.
type Progress struct {
	Total      int      `json:"total"`
	Completed  int      `json:"completed"`
	InProgress []string `json:"in_progress"`
	Failed     []string `json:"failed"`
}

// Status is a point-in-time view of the scheduler for progress indicators.
type Status struct {
	SessionID   string `json:"session_id"`
	QueueDepth  int    `json:"queue_depth"`
	Enriched    int    `json:"enriched"`
	InProgress  int    `json:"in_progress"`
	Failed      int    `json:"failed"`
	BatchActive bool   `json:"batch_active"`
}

// Match classifies how well a program's offers line up with the cash schedule.
type Match string

const (
	MatchExact   Match = "exact"
	MatchPartial Match = "partial"
	MatchMixed   Match = "mixed"
)

// ProgramView is a ranked mileage program as rendered by the presentation layer.
type ProgramView struct {
	Carrier      string                `json:"carrier"`
	TotalMileage float64               `json:"total_mileage"`
	TotalPrice   float64               `json:"total_price"`
	Match        Match                 `json:"match"`
	SegmentCount int                   `json:"segment_count"`
	Complete     bool                  `json:"complete"`
	Offers       []model.RawAwardOffer `json:"offers"`
	// StrikeThrough marks the cash price as beaten at itinerary-card level.
	StrikeThrough bool `json:"strike_through"`
}

// CabinView is the best-value offer for one cabin.
type CabinView struct {
	Cabin   string              `json:"cabin"`
	Value   float64             `json:"value"`
	Offer   model.RawAwardOffer `json:"offer"`
	Savings float64             `json:"savings,omitempty"`
	// SaveBadge is set when the offer clears the offer-level savings threshold.
	SaveBadge bool `json:"save_badge"`
}

// WindowView holds alternative-time offers for the recommended program.
type WindowView struct {
	BestMatch       []model.RawAwardOffer `json:"best_match"`
	TimeInsensitive []model.RawAwardOffer `json:"time_insensitive"`
	Selected        string                `json:"selected"`
}

// Valuation is the decision-ready summary for one itinerary.
type Valuation struct {
	ItineraryID string        `json:"itinerary_id"`
	CashPrice   float64       `json:"cash_price"`
	Currency    string        `json:"currency"`
	Recommended *ProgramView  `json:"recommended,omitempty"`
	Programs    []ProgramView `json:"programs"`
	Cabins      []CabinView   `json:"cabins"`
	Window      WindowView    `json:"window"`
}

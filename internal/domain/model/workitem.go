package model

// Priority orders enrichment work; lower runs first.
type Priority int

const (
	PriorityVisible Priority = 1
	PriorityHidden  Priority = 2
)

// PriorityFor maps a visibility flag to its priority.
func PriorityFor(visible bool) Priority {
	if visible {
		return PriorityVisible
	}
	return PriorityHidden
}

// WorkItem is one itinerary awaiting award-data lookup.
type WorkItem struct {
	ID        string
	Carrier   string
	Visible   bool
	Priority  Priority
	Itinerary Itinerary
	// Seq is the arrival order within a session; ties in priority keep it.
	Seq uint64
}

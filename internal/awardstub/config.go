// Package awardstub is a development double of the award provider. It
// streams newline-delimited award records in both upstream shapes.
package awardstub

import "time"

// Default stub configuration constants.
const (
	DefaultRecords = 3
	DefaultDelay   = 50 * time.Millisecond
)

// Config controls what the stub streams.
type Config struct {
	// Records is the number of records streamed per requested carrier.
	Records int
	// Delay is the pause before each record.
	Delay time.Duration
	// MalformedEvery injects an invalid line before every Nth record.
	// Zero disables injection.
	MalformedEvery int
}

func (c Config) records() int {
	if c.Records <= 0 {
		return DefaultRecords
	}
	return c.Records
}

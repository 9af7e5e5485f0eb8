package worker

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrStopped = errors.New("scheduler stopped")
)

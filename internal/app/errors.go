package service

import "github.com/cockroachdb/errors"

// Sentinel kinds for service errors.
var (
	ErrStopped = errors.New("service stopped")
)

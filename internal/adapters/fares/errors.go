package fares

import "github.com/cockroachdb/errors"

// Sentinel kinds for cash-fare lookups.
var (
	ErrDisabled       = errors.New("alternates endpoint not configured")
	ErrInvalidRequest = errors.New("invalid alternates request")
	ErrTransport      = errors.New("fare provider unreachable")
	ErrStatus         = errors.New("fare provider returned an error status")
	ErrDecode         = errors.New("fare provider response could not be decoded")
)

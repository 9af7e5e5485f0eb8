package currency

import "errors"

// Sentinel kinds for conversion errors.
var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrInvalidRate     = errors.New("invalid conversion rate")
)

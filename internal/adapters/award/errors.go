package award

import "github.com/cockroachdb/errors"

// Sentinel kinds for award stream errors. Transport, status and read
// failures end a stream; malformed and oversize lines are skipped.
var (
	ErrTransport   = errors.New("award provider unreachable")
	ErrStatus      = errors.New("award provider returned an error status")
	ErrRead        = errors.New("award stream read failed")
	ErrMalformed   = errors.New("malformed award record")
	ErrLineTooLong = errors.New("award record exceeds line limit")
)

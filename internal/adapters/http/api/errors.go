package api

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel kinds for API errors. Collaborators mark their errors with these
// kinds so handlers can choose a status code without importing them.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("service unavailable")
	ErrUpstream    = errors.New("upstream failure")
)

// WrapKind wraps err with op and marks it with kind.
func WrapKind(op string, kind, err error) error {
	return errors.Mark(errors.Wrap(err, op), kind)
}

// NewKind returns a kind error annotated with op.
func NewKind(op string, kind error) error {
	return errors.Wrap(kind, op)
}

// Wrap annotates err with op without classifying it.
func Wrap(op string, err error) error {
	return errors.Wrap(err, op)
}

// statusFor maps an error kind to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/internal/adapters/fares"
)

type alternatesResponse struct {
	Airport string                     `json:"airport,omitempty"`
	Results map[string]json.RawMessage `json:"results"`
}

// AlternatesHandler serves cached alternate-airport lookups.
type AlternatesHandler struct {
	deps Dependencies
}

// NewAlternatesHandler creates a new alternates handler.
func NewAlternatesHandler(deps Dependencies) *AlternatesHandler {
	return &AlternatesHandler{deps: deps}
}

// HandleAlternates handles POST /alternates?airport=XXX.
func (h *AlternatesHandler) HandleAlternates(w http.ResponseWriter, r *http.Request) {
	const op = "api.alternates"
	var req fares.AlternatesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	airport := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("airport")))

	res, err := h.deps.Alternates(r.Context(), req, airport)
	switch {
	case errors.Is(err, fares.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, fares.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case errors.IsAny(err, fares.ErrTransport, fares.ErrStatus, fares.ErrDecode):
		writeKindError(r.Context(), w, WrapKind(op, ErrUpstream, err))
		return
	case err != nil:
		writeKindError(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, alternatesResponse{Airport: airport, Results: res})
}

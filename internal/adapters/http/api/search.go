package api

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
)

type enrichRequest struct {
	Itineraries []model.Itinerary `json:"itineraries"`
	VisibleIDs  []string          `json:"visible_ids"`
	Reset       bool              `json:"reset"`
}

type enrichResponse struct {
	Accepted int          `json:"accepted"`
	Status   types.Status `json:"status"`
}

type visibilityRequest struct {
	VisibleIDs []string `json:"visible_ids"`
}

type statusResponse struct {
	Status   types.Status   `json:"status"`
	Progress types.Progress `json:"progress"`
}

// SearchHandler drives the enrichment session of a search.
type SearchHandler struct {
	deps Dependencies
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(deps Dependencies) *SearchHandler {
	return &SearchHandler{deps: deps}
}

// HandleEnrich handles POST /search/enrich.
func (h *SearchHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	const op = "api.enrich"
	var req enrichRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Itineraries) == 0 && !req.Reset {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("no itineraries")))
		return
	}
	accepted, st := h.deps.Enrich(r.Context(), req.Itineraries, req.VisibleIDs, req.Reset)
	writeJSON(w, http.StatusAccepted, enrichResponse{Accepted: accepted, Status: st})
}

// HandleVisibility handles POST /search/visibility.
func (h *SearchHandler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	const op = "api.visibility"
	var req visibilityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.UpdateVisibility(r.Context(), req.VisibleIDs))
}

// HandleReset handles POST /search/reset.
func (h *SearchHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Reset(r.Context()))
}

// HandleStatus handles GET /search/status.
func (h *SearchHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: h.deps.Status(), Progress: h.deps.Progress()})
}

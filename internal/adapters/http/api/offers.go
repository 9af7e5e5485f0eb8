package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/internal/domain/model"
)

type offersResponse struct {
	Carrier string                `json:"carrier"`
	Offers  []model.RawAwardOffer `json:"offers"`
}

// OffersHandler serves received offers and itinerary valuations.
type OffersHandler struct {
	deps Dependencies
}

// NewOffersHandler creates a new offers handler.
func NewOffersHandler(deps Dependencies) *OffersHandler {
	return &OffersHandler{deps: deps}
}

// HandleOffers handles GET /offers/{carrier}.
func (h *OffersHandler) HandleOffers(w http.ResponseWriter, r *http.Request) {
	const op = "api.offers"
	carrier := strings.ToUpper(strings.TrimSpace(r.PathValue("carrier")))
	if len(carrier) != model.CarrierCodeLength {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	offers := h.deps.Offers(carrier)
	if offers == nil {
		offers = []model.RawAwardOffer{}
	}
	writeJSON(w, http.StatusOK, offersResponse{Carrier: carrier, Offers: offers})
}

// HandleValuation handles GET /itineraries/{id}/valuation.
func (h *OffersHandler) HandleValuation(w http.ResponseWriter, r *http.Request) {
	const op = "api.valuation"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	var cash float64
	if raw := r.URL.Query().Get("cash_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.Newf("invalid cash_price %q", raw)))
			return
		}
		cash = v
	}
	currency := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))

	v, err := h.deps.Valuation(r.Context(), id, cash, currency)
	if err != nil {
		writeKindError(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

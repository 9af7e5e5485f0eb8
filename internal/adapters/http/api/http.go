// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/milepost/internal/adapters/fares"
	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
	"github.com/okian/milepost/pkg/logger"
)

const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// Enrich optionally resets the session, then queues itineraries and
	// returns how many were accepted.
	Enrich(ctx context.Context, itineraries []model.Itinerary, visibleIDs []string, reset bool) (int, types.Status)
	UpdateVisibility(ctx context.Context, visibleIDs []string) types.Status
	Reset(ctx context.Context) types.Status
	Status() types.Status
	Progress() types.Progress

	// Offers returns the deduplicated offers received for carrier.
	Offers(carrier string) []model.RawAwardOffer
	Valuation(ctx context.Context, itineraryID string, cashPrice float64, currency string) (types.Valuation, error)
	Alternates(ctx context.Context, req fares.AlternatesRequest, airport string) (map[string]json.RawMessage, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	searchHandler     *SearchHandler
	offersHandler     *OffersHandler
	alternatesHandler *AlternatesHandler
	hub               *Hub
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, hub *Hub) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		searchHandler:     NewSearchHandler(deps),
		offersHandler:     NewOffersHandler(deps),
		alternatesHandler: NewAlternatesHandler(deps),
		hub:               hub,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /search/enrich", MetricsMiddleware(s.searchHandler.HandleEnrich, "search_enrich"))
	mux.HandleFunc("POST /search/visibility", MetricsMiddleware(s.searchHandler.HandleVisibility, "search_visibility"))
	mux.HandleFunc("POST /search/reset", MetricsMiddleware(s.searchHandler.HandleReset, "search_reset"))
	mux.HandleFunc("GET /search/status", MetricsMiddleware(s.searchHandler.HandleStatus, "search_status"))

	mux.HandleFunc("GET /offers/{carrier}", MetricsMiddleware(s.offersHandler.HandleOffers, "offers"))
	mux.HandleFunc("GET /itineraries/{id}/valuation", MetricsMiddleware(s.offersHandler.HandleValuation, "valuation"))
	mux.HandleFunc("POST /alternates", MetricsMiddleware(s.alternatesHandler.HandleAlternates, "alternates"))

	if s.hub != nil {
		mux.HandleFunc("GET /ws/offers", MetricsMiddleware(s.hub.HandleWS, "ws_offers"))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError writes err with the status its kind maps to.
func writeKindError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(ctx, "request failed", logger.Error(err))
	}
	writeError(w, status, code, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

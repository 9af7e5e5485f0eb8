package awardstub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/milepost/internal/adapters/award"
	"github.com/okian/milepost/pkg/logger"
)

const malformedLine = `{"type":"direct","solution":`

// Handler serves the streaming award search.
type Handler struct {
	cfg    Config
	logger logger.Logger
}

// NewHandler creates a stub award endpoint.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg, logger: logger.Get().Named("awardstub")}
}

// ServeHTTP accepts an award request and streams records as NDJSON,
// flushing after each one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req award.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Carriers) == 0 || len(req.Slices) == 0 {
		http.Error(w, "carriers and slices are required", http.StatusBadRequest)
		return
	}
	records, err := Records(req, h.cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	h.logger.Info(ctx, "streaming award records",
		logger.Strings("carriers", req.Carriers),
		logger.Int("slices", len(req.Slices)),
		logger.Int("records", len(records)))

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for i, rec := range records {
		if h.cfg.Delay > 0 {
			t := time.NewTimer(h.cfg.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if h.cfg.MalformedEvery > 0 && (i+1)%h.cfg.MalformedEvery == 0 {
			_, _ = w.Write([]byte(malformedLine + "\n"))
		}
		if _, err := w.Write(append(rec, '\n')); err != nil {
			h.logger.Warn(ctx, "client went away", logger.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

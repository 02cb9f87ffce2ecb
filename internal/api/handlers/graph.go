package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/seclens/rotograph/internal/graph"
	"github.com/seclens/rotograph/pkg/logger"
)

// GraphHandler handles rotation graph query endpoints.
type GraphHandler struct {
	finder *graph.Finder
	logger *logger.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(finder *graph.Finder, log *logger.Logger) *GraphHandler {
	return &GraphHandler{finder: finder, logger: log}
}

// GetNeighborhood returns the bounded rotation neighborhood of a ticker.
func (h *GraphHandler) GetNeighborhood(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	from, to, err := parseWindow(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	hops := 2
	if raw := r.URL.Query().Get("hops"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			hops = parsed
		}
	}

	neighborhood, err := h.finder.ResolveNeighborhood(r.Context(), ticker, from, to, hops)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, neighborhood)
}

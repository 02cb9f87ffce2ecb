package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/explain"
	"github.com/seclens/rotograph/pkg/logger"
)

// ExplainHandler handles edge explanation endpoints.
type ExplainHandler struct {
	service *explain.Service
	logger  *logger.Logger
}

// NewExplainHandler creates a new explain handler
func NewExplainHandler(service *explain.Service, log *logger.Logger) *ExplainHandler {
	return &ExplainHandler{service: service, logger: log}
}

// ExplainRequest is the POST /api/explain body.
type ExplainRequest struct {
	EdgeIDs  []int64 `json:"edgeIds"`
	Question string  `json:"question,omitempty"`
}

// Explain generates a narrative for a set of edges.
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: decode body: %v", contracts.ErrInputInvalid, err))
		return
	}

	explanation, err := h.service.Explain(r.Context(), req.EdgeIDs, req.Question)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"explanationId": explanation.ID,
		"content":       explanation.Content,
		"accessions":    explanation.Accessions,
	})
}

// GetExplanation returns a previously generated explanation.
func (h *ExplainHandler) GetExplanation(w http.ResponseWriter, r *http.Request) {
	explanation, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, explanation)
}

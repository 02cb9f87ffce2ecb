package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/pipeline"
	"github.com/seclens/rotograph/pkg/logger"
)

const dateLayout = "2006-01-02"

// RunsHandler handles run orchestration and score lookup endpoints.
type RunsHandler struct {
	checkpoints  durable.CheckpointStore
	issuers      contracts.IssuerRepository
	scores       contracts.ScoreRepository
	defaultBatch int
	logger       *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(
	checkpoints durable.CheckpointStore,
	issuers contracts.IssuerRepository,
	scores contracts.ScoreRepository,
	defaultBatch int,
	log *logger.Logger,
) *RunsHandler {
	return &RunsHandler{
		checkpoints:  checkpoints,
		issuers:      issuers,
		scores:       scores,
		defaultBatch: defaultBatch,
		logger:       log,
	}
}

// StartRunRequest is the POST /api/runs body.
type StartRunRequest struct {
	Ticker string `json:"ticker"`
	From   string `json:"from"` // inclusive, YYYY-MM-DD
	To     string `json:"to"`   // exclusive, YYYY-MM-DD
	Kind   string `json:"kind,omitempty"`
}

// StartRun enqueues a fan-out run over the requested range.
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: decode body: %v", contracts.ErrInputInvalid, err))
		return
	}

	from, err := time.Parse(dateLayout, req.From)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: from: %v", contracts.ErrInputInvalid, err))
		return
	}
	to, err := time.Parse(dateLayout, req.To)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: to: %v", contracts.ErrInputInvalid, err))
		return
	}

	kind := contracts.RunKind(req.Kind)
	if req.Kind == "" {
		kind = contracts.RunKindQuery
	}

	runID, err := pipeline.StartFanout(r.Context(), h.checkpoints, pipeline.FanoutArgs{
		Ticker:           req.Ticker,
		From:             from,
		To:               to,
		RunKind:          kind,
		QuarterBatchSize: h.defaultBatch,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"ticker": req.Ticker,
	}).Info("Run enqueued")

	respondJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// RunStatus is the GET /api/runs/{id} response.
type RunStatus struct {
	RunID     string `json:"runId"`
	Workflow  string `json:"workflow"`
	Status    string `json:"status"`
	Iteration int    `json:"iteration"`
	WakeAt    string `json:"wakeAt"`
	LastError string `json:"lastError,omitempty"`
}

// GetRun reports the checkpoint state of a run.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	cp, err := h.checkpoints.Get(r.Context(), runID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if cp == nil {
		respondError(w, h.logger, fmt.Errorf("%w: run %s", contracts.ErrNotFound, runID))
		return
	}

	respondJSON(w, http.StatusOK, RunStatus{
		RunID:     cp.RunID,
		Workflow:  cp.Workflow,
		Status:    string(cp.Status),
		Iteration: cp.Iteration,
		WakeAt:    cp.WakeAt.UTC().Format(time.RFC3339),
		LastError: cp.LastError,
	})
}

// GetScores returns the stored composite scores for a ticker over [from, to).
func (h *RunsHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	from, to, err := parseWindow(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	issuer, err := h.resolveIssuer(r.Context(), ticker)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	records, err := h.scores.GetByRange(r.Context(), issuer.CIK, from, to)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": issuer.Ticker,
		"cik":    issuer.CIK,
		"scores": records,
	})
}

func (h *RunsHandler) resolveIssuer(ctx context.Context, ticker string) (*contracts.Issuer, error) {
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", contracts.ErrInputInvalid)
	}
	issuer, err := h.issuers.GetByTicker(ctx, ticker)
	if err == nil {
		return issuer, nil
	}
	return h.issuers.GetByCIK(ctx, ticker)
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	from, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %v", contracts.ErrInputInvalid, err)
	}
	to, err := time.Parse(dateLayout, q.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %v", contracts.ErrInputInvalid, err)
	}
	return from, to, nil
}

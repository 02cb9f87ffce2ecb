package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/graph"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeIssuerRepo struct{ byCIK map[string]*contracts.Issuer }

func (r *fakeIssuerRepo) Upsert(_ context.Context, i *contracts.Issuer) error {
	r.byCIK[i.CIK] = i
	return nil
}

func (r *fakeIssuerRepo) GetByCIK(_ context.Context, cik string) (*contracts.Issuer, error) {
	if i, ok := r.byCIK[cik]; ok {
		return i, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *fakeIssuerRepo) GetByTicker(_ context.Context, ticker string) (*contracts.Issuer, error) {
	for _, i := range r.byCIK {
		if i.Ticker == ticker {
			return i, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (r *fakeIssuerRepo) GetByCUSIP(_ context.Context, cusip string) (*contracts.Issuer, error) {
	for _, i := range r.byCIK {
		for _, c := range i.CUSIPs {
			if c == cusip {
				return i, nil
			}
		}
	}
	return nil, contracts.ErrNotFound
}

func (r *fakeIssuerRepo) AppendCUSIPs(_ context.Context, _ string, _ []string) error { return nil }

type fakeScoreRepo struct{ rows []*contracts.ScoreRecord }

func (r *fakeScoreRepo) Upsert(_ context.Context, rec *contracts.ScoreRecord) error {
	r.rows = append(r.rows, rec)
	return nil
}

func (r *fakeScoreRepo) GetByPeriod(_ context.Context, _ string, _ time.Time) (*contracts.ScoreRecord, error) {
	return nil, contracts.ErrNotFound
}

func (r *fakeScoreRepo) GetByRange(_ context.Context, cik string, from, to time.Time) ([]*contracts.ScoreRecord, error) {
	var out []*contracts.ScoreRecord
	for _, rec := range r.rows {
		if rec.CIK == cik && !rec.Period.Start.Before(from) && rec.Period.Start.Before(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeEntityRepo struct{}

func (fakeEntityRepo) Upsert(_ context.Context, e *contracts.Entity) (*contracts.Entity, error) {
	return e, nil
}

func (fakeEntityRepo) GetByKey(_ context.Context, _, _ string, _ contracts.EntityKind) (*contracts.Entity, error) {
	return nil, contracts.ErrNotFound
}

func (fakeEntityRepo) GetByCIKs(_ context.Context, _ []string) ([]*contracts.Entity, error) {
	return nil, nil
}

type fakeEdgeRepo struct{}

func (fakeEdgeRepo) Upsert(_ context.Context, e *contracts.RotationEdge) (*contracts.RotationEdge, error) {
	return e, nil
}

func (fakeEdgeRepo) GetByIDs(_ context.Context, _ []int64) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (fakeEdgeRepo) GetByCluster(_ context.Context, _ string) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (fakeEdgeRepo) GetByCUSIPs(_ context.Context, _ []string, _, _ time.Time) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (fakeEdgeRepo) GetOutgoing(_ context.Context, _ string, _, _ time.Time) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (fakeEdgeRepo) GetTouching(_ context.Context, _ string, _, _ time.Time) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func newRunsHandler(t *testing.T) (*RunsHandler, *durable.MemoryStore, *fakeIssuerRepo, *fakeScoreRepo) {
	t.Helper()

	store := durable.NewMemoryStore()
	issuers := &fakeIssuerRepo{byCIK: map[string]*contracts.Issuer{}}
	scores := &fakeScoreRepo{}
	return NewRunsHandler(store, issuers, scores, 4, testLogger()), store, issuers, scores
}

func TestStartRunEnqueuesCheckpoint(t *testing.T) {
	h, store, _, _ := newRunsHandler(t)

	body, _ := json.Marshal(StartRunRequest{
		Ticker: "ACME", From: "2023-01-01", To: "2024-01-01", Kind: "backfill",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StartRun(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["runId"])

	cp, err := store.Get(context.Background(), resp["runId"])
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, durable.StatusPending, cp.Status)
	assert.Contains(t, string(cp.Args), `"ACME"`)
}

func TestStartRunRejectsBadInput(t *testing.T) {
	h, _, _, _ := newRunsHandler(t)

	cases := []StartRunRequest{
		{Ticker: "ACME", From: "not-a-date", To: "2024-01-01"},
		{Ticker: "ACME", From: "2024-01-01", To: "2023-01-01"},
		{Ticker: "", From: "2023-01-01", To: "2024-01-01"},
		{Ticker: "ACME", From: "2023-01-01", To: "2024-01-01", Kind: "sideways"},
	}
	for _, c := range cases {
		body, _ := json.Marshal(c)
		rec := httptest.NewRecorder()
		h.StartRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "case %+v", c)
	}
}

func TestGetRunStatus(t *testing.T) {
	h, store, _, _ := newRunsHandler(t)

	require.NoError(t, store.Create(context.Background(), &durable.Checkpoint{
		RunID: "run-1", Workflow: "fanout", Iteration: 3,
		Version: durable.CheckpointVersion,
		Args:    []byte(`{}`), Status: durable.StatusPending,
		WakeAt: day(2024, 5, 1),
	}))

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil), map[string]string{"id": "run-1"})
	rec := httptest.NewRecorder()
	h.GetRun(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "fanout", status.Workflow)
	assert.Equal(t, 3, status.Iteration)
	assert.Equal(t, "pending", status.Status)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/runs/ghost", nil), map[string]string{"id": "ghost"})
	rec = httptest.NewRecorder()
	h.GetRun(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScores(t *testing.T) {
	h, _, issuers, scores := newRunsHandler(t)
	ctx := context.Background()

	require.NoError(t, issuers.Upsert(ctx, &contracts.Issuer{
		CIK: "0000320193", Ticker: "AAPL", CUSIPs: []string{"037833100"},
	}))
	require.NoError(t, scores.Upsert(ctx, &contracts.ScoreRecord{
		CIK: "0000320193",
		Period: contracts.Period{
			Start: day(2024, 1, 1), End: day(2024, 4, 1),
		},
		Composite: 0.42,
	}))

	req := mux.SetURLVars(
		httptest.NewRequest(http.MethodGet, "/api/scores/AAPL?from=2024-01-01&to=2025-01-01", nil),
		map[string]string{"ticker": "AAPL"},
	)
	rec := httptest.NewRecorder()
	h.GetScores(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Ticker string                   `json:"ticker"`
		CIK    string                   `json:"cik"`
		Scores []*contracts.ScoreRecord `json:"scores"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0000320193", resp.CIK)
	require.Len(t, resp.Scores, 1)
	assert.Equal(t, 0.42, resp.Scores[0].Composite)

	// unknown ticker
	req = mux.SetURLVars(
		httptest.NewRequest(http.MethodGet, "/api/scores/NOPE?from=2024-01-01&to=2025-01-01", nil),
		map[string]string{"ticker": "NOPE"},
	)
	rec = httptest.NewRecorder()
	h.GetScores(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// missing window
	req = mux.SetURLVars(
		httptest.NewRequest(http.MethodGet, "/api/scores/AAPL", nil),
		map[string]string{"ticker": "AAPL"},
	)
	rec = httptest.NewRecorder()
	h.GetScores(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNeighborhoodValidation(t *testing.T) {
	issuers := &fakeIssuerRepo{byCIK: map[string]*contracts.Issuer{}}
	finder := graph.NewFinder(issuers, fakeEntityRepo{}, fakeEdgeRepo{}, testLogger())
	h := NewGraphHandler(finder, testLogger())

	req := mux.SetURLVars(
		httptest.NewRequest(http.MethodGet, "/api/graph/AAPL/neighborhood?from=2024-01-01&to=2025-01-01&hops=99", nil),
		map[string]string{"ticker": "AAPL"},
	)
	rec := httptest.NewRecorder()
	h.GetNeighborhood(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = mux.SetURLVars(
		httptest.NewRequest(http.MethodGet, "/api/graph/AAPL/neighborhood?from=2024-01-01&to=2025-01-01", nil),
		map[string]string{"ticker": "AAPL"},
	)
	rec = httptest.NewRecorder()
	h.GetNeighborhood(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamHubBroadcast(t *testing.T) {
	hub := NewStreamHub(testLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.Serve))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait for registration
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.SubscriberCount())

	edge := &contracts.RotationEdge{
		ID: 7, ClusterID: "cl-1", CUSIP: "037833100",
		SellerCIK: "0000001111", ReceiverCIK: "0000002222", Weight: 0.42,
		AnchorDate: day(2024, 3, 15),
	}
	hub.PublishEdge(edge)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type string                  `json:"type"`
		Edge *contracts.RotationEdge `json:"edge"`
	}
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "edge", event.Type)
	assert.Equal(t, int64(7), event.Edge.ID)
	assert.Equal(t, "0000002222", event.Edge.ReceiverCIK)
}

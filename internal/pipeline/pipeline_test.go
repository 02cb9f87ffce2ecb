package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/rotograph/internal/aggregate"
	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/events"
	"github.com/seclens/rotograph/internal/graph"
	"github.com/seclens/rotograph/internal/score"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestQuarterStart(t *testing.T) {
	assert.Equal(t, day(2024, 1, 1), QuarterStart(day(2024, 2, 14)))
	assert.Equal(t, day(2024, 4, 1), QuarterStart(day(2024, 4, 1)))
	assert.Equal(t, day(2024, 10, 1), QuarterStart(day(2024, 12, 31)))
}

func TestPartition(t *testing.T) {
	periods := Partition(day(2024, 1, 1), day(2025, 1, 1))
	require.Len(t, periods, 4)
	assert.Equal(t, day(2024, 1, 1), periods[0].Start)
	assert.Equal(t, day(2024, 4, 1), periods[0].End)
	assert.Equal(t, day(2025, 1, 1), periods[3].End)

	// Unaligned boundaries truncate the first and last sub-range
	periods = Partition(day(2024, 2, 15), day(2024, 8, 10))
	require.Len(t, periods, 3)
	assert.Equal(t, day(2024, 2, 15), periods[0].Start)
	assert.Equal(t, day(2024, 4, 1), periods[0].End)
	assert.Equal(t, day(2024, 8, 10), periods[2].End)

	assert.Nil(t, Partition(day(2024, 1, 1), day(2024, 1, 1)))
	assert.Nil(t, Partition(day(2024, 6, 1), day(2024, 1, 1)))
}

func TestNextQuarter(t *testing.T) {
	next := NextQuarter(contracts.Period{Start: day(2024, 1, 1), End: day(2024, 4, 1)})
	assert.Equal(t, day(2024, 4, 1), next.Start)
	assert.Equal(t, day(2024, 7, 1), next.End)

	// Truncated period extends to the enclosing quarter's end
	next = NextQuarter(contracts.Period{Start: day(2024, 1, 1), End: day(2024, 2, 15)})
	assert.Equal(t, day(2024, 2, 15), next.Start)
	assert.Equal(t, day(2024, 4, 1), next.End)
}

func TestIndexWindowsForRange(t *testing.T) {
	windows := IndexWindowsForRange(day(2024, 6, 1), day(2024, 7, 1))

	var phases []contracts.IndexWindowPhase
	for _, w := range windows {
		phases = append(phases, w.Phase)
	}
	assert.Contains(t, phases, contracts.PhaseEffective, "June quarterly review")
	assert.Contains(t, phases, contracts.PhaseAnnounce, "Russell announce window")
	assert.Contains(t, phases, contracts.PhaseDrift, "Russell reconstitution drift")

	again := IndexWindowsForRange(day(2024, 6, 1), day(2024, 7, 1))
	assert.Equal(t, windows, again, "calendar is deterministic")

	assert.Nil(t, IndexWindowsForRange(day(2024, 6, 1), day(2024, 6, 1)))

	// January has no June windows
	for _, w := range IndexWindowsForRange(day(2024, 1, 1), day(2024, 2, 1)) {
		assert.NotEqual(t, contracts.PhaseAnnounce, w.Phase)
	}
}

// --- in-memory repositories ---

type memRepos struct {
	issuers  *memIssuerRepo
	entities *memEntityRepo
	bundles  *memBundleRepo
	scores   *memScoreRepo
	clusters *memClusterRepo
	cursors  *memCursorRepo
	edges    *memEdgeRepo
}

func newMemRepos() *memRepos {
	return &memRepos{
		issuers:  &memIssuerRepo{byCIK: map[string]*contracts.Issuer{}},
		entities: &memEntityRepo{entities: map[string]*contracts.Entity{}},
		bundles:  &memBundleRepo{rows: map[string]*contracts.SignalBundle{}},
		scores:   &memScoreRepo{rows: map[string]*contracts.ScoreRecord{}},
		clusters: &memClusterRepo{rows: map[string]*contracts.DumpEventCluster{}},
		cursors:  &memCursorRepo{rows: map[string]*contracts.IngestionCursor{}},
		edges:    &memEdgeRepo{rows: map[string]*contracts.RotationEdge{}},
	}
}

type memIssuerRepo struct{ byCIK map[string]*contracts.Issuer }

func (r *memIssuerRepo) Upsert(_ context.Context, issuer *contracts.Issuer) error {
	r.byCIK[issuer.CIK] = issuer
	return nil
}

func (r *memIssuerRepo) GetByCIK(_ context.Context, cik string) (*contracts.Issuer, error) {
	if i, ok := r.byCIK[cik]; ok {
		return i, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *memIssuerRepo) GetByTicker(_ context.Context, ticker string) (*contracts.Issuer, error) {
	for _, i := range r.byCIK {
		if i.Ticker == ticker {
			return i, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (r *memIssuerRepo) GetByCUSIP(_ context.Context, cusip string) (*contracts.Issuer, error) {
	for _, i := range r.byCIK {
		for _, c := range i.CUSIPs {
			if c == cusip {
				return i, nil
			}
		}
	}
	return nil, contracts.ErrNotFound
}

func (r *memIssuerRepo) AppendCUSIPs(_ context.Context, cik string, cusips []string) error {
	if i, ok := r.byCIK[cik]; ok {
		i.CUSIPs = append(i.CUSIPs, cusips...)
	}
	return nil
}

type memEntityRepo struct {
	entities map[string]*contracts.Entity
	nextID   int64
}

func (r *memEntityRepo) Upsert(_ context.Context, e *contracts.Entity) (*contracts.Entity, error) {
	if existing, ok := r.entities[e.Key()]; ok {
		updated := *e
		updated.ID = existing.ID
		r.entities[e.Key()] = &updated
		return &updated, nil
	}
	r.nextID++
	stored := *e
	stored.ID = r.nextID
	r.entities[e.Key()] = &stored
	return &stored, nil
}

func (r *memEntityRepo) GetByKey(_ context.Context, cik, series string, kind contracts.EntityKind) (*contracts.Entity, error) {
	e := &contracts.Entity{CIK: cik, Series: series, Kind: kind}
	if found, ok := r.entities[e.Key()]; ok {
		return found, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *memEntityRepo) GetByCIKs(_ context.Context, ciks []string) ([]*contracts.Entity, error) {
	var out []*contracts.Entity
	for _, e := range r.entities {
		for _, cik := range ciks {
			if e.CIK == cik {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

type memBundleRepo struct{ rows map[string]*contracts.SignalBundle }

func bundleKey(cik string, start time.Time) string { return cik + "|" + start.Format("2006-01-02") }

func (r *memBundleRepo) Upsert(_ context.Context, b *contracts.SignalBundle) error {
	r.rows[bundleKey(b.CIK, b.Period.Start)] = b
	return nil
}

func (r *memBundleRepo) GetByPeriod(_ context.Context, cik string, start time.Time) (*contracts.SignalBundle, error) {
	if b, ok := r.rows[bundleKey(cik, start)]; ok {
		return b, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *memBundleRepo) GetByRange(_ context.Context, cik string, from, to time.Time) ([]*contracts.SignalBundle, error) {
	var out []*contracts.SignalBundle
	for _, b := range r.rows {
		if b.CIK == cik && !b.Period.Start.Before(from) && b.Period.Start.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type memScoreRepo struct{ rows map[string]*contracts.ScoreRecord }

func (r *memScoreRepo) Upsert(_ context.Context, s *contracts.ScoreRecord) error {
	r.rows[bundleKey(s.CIK, s.Period.Start)] = s
	return nil
}

func (r *memScoreRepo) GetByPeriod(_ context.Context, cik string, start time.Time) (*contracts.ScoreRecord, error) {
	if s, ok := r.rows[bundleKey(cik, start)]; ok {
		return s, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *memScoreRepo) GetByRange(_ context.Context, cik string, from, to time.Time) ([]*contracts.ScoreRecord, error) {
	var out []*contracts.ScoreRecord
	for _, s := range r.rows {
		if s.CIK == cik && !s.Period.Start.Before(from) && s.Period.Start.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type memClusterRepo struct{ rows map[string]*contracts.DumpEventCluster }

func (r *memClusterRepo) Upsert(_ context.Context, c *contracts.DumpEventCluster) error {
	r.rows[c.ClusterID] = c
	return nil
}

func (r *memClusterRepo) GetByID(_ context.Context, id string) (*contracts.DumpEventCluster, error) {
	if c, ok := r.rows[id]; ok {
		return c, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *memClusterRepo) GetBySellerAndRange(_ context.Context, seller string, from, to time.Time) ([]*contracts.DumpEventCluster, error) {
	var out []*contracts.DumpEventCluster
	for _, c := range r.rows {
		if c.SellerCIK == seller && !c.AnchorDate.Before(from) && c.AnchorDate.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memCursorRepo struct{ rows map[string]*contracts.IngestionCursor }

func cursorKey(p contracts.PipelineKind, key string) string { return string(p) + "|" + key }

func (r *memCursorRepo) Get(_ context.Context, p contracts.PipelineKind, key string) (*contracts.IngestionCursor, error) {
	if c, ok := r.rows[cursorKey(p, key)]; ok {
		return c, nil
	}
	return nil, contracts.ErrNotFound
}

func (r *memCursorRepo) Advance(_ context.Context, p contracts.PipelineKind, key string, watermark time.Time) error {
	existing, ok := r.rows[cursorKey(p, key)]
	if ok && !watermark.After(existing.Watermark) {
		return nil
	}
	r.rows[cursorKey(p, key)] = &contracts.IngestionCursor{Pipeline: p, Key: key, Watermark: watermark}
	return nil
}

func (r *memCursorRepo) Reset(_ context.Context, p contracts.PipelineKind, key string, since time.Time) error {
	r.rows[cursorKey(p, key)] = &contracts.IngestionCursor{Pipeline: p, Key: key, Watermark: since}
	return nil
}

type memEdgeRepo struct {
	rows   map[string]*contracts.RotationEdge
	nextID int64
}

func (r *memEdgeRepo) Upsert(_ context.Context, edge *contracts.RotationEdge) (*contracts.RotationEdge, error) {
	key := edge.ClusterID + "|" + edge.CUSIP
	if existing, ok := r.rows[key]; ok {
		updated := *edge
		updated.ID = existing.ID
		r.rows[key] = &updated
		return &updated, nil
	}
	r.nextID++
	stored := *edge
	stored.ID = r.nextID
	r.rows[key] = &stored
	return &stored, nil
}

func (r *memEdgeRepo) GetByIDs(_ context.Context, _ []int64) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (r *memEdgeRepo) GetByCluster(_ context.Context, clusterID string) ([]*contracts.RotationEdge, error) {
	var out []*contracts.RotationEdge
	for _, e := range r.rows {
		if e.ClusterID == clusterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEdgeRepo) GetByCUSIPs(_ context.Context, _ []string, _, _ time.Time) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (r *memEdgeRepo) GetOutgoing(_ context.Context, _ string, _, _ time.Time) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

func (r *memEdgeRepo) GetTouching(_ context.Context, _ string, _, _ time.Time) ([]*contracts.RotationEdge, error) {
	return nil, nil
}

// --- fake gateway ---

type fakeGateway struct {
	holdings []*contracts.HoldingPoint
	filings  []*contracts.Filing

	resolveCalls     int
	aggregatePeriods []contracts.Period
	failTicker       string
	failErr          error

	submissions     []*contracts.Filing
	submissionsHint time.Time
}

func (f *fakeGateway) ResolveIssuer(_ context.Context, ticker string) (*contracts.Issuer, error) {
	f.resolveCalls++
	return &contracts.Issuer{CIK: "cik-" + ticker, Ticker: ticker, Name: ticker + " Corp", CUSIPs: []string{"cusip-" + ticker}}, nil
}

func (f *fakeGateway) FetchFilingIndex(_ context.Context, cik string, period contracts.Period) ([]*contracts.Filing, error) {
	f.aggregatePeriods = append(f.aggregatePeriods, period)
	return f.filings, nil
}

func (f *fakeGateway) FetchHoldings(_ context.Context, cik string, _ []string, period contracts.Period) ([]*contracts.HoldingPoint, error) {
	if f.failErr != nil && cik == "cik-"+f.failTicker {
		return nil, f.failErr
	}
	var out []*contracts.HoldingPoint
	for _, p := range f.holdings {
		if period.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeGateway) FetchShortInterest(_ context.Context, _ string, _ contracts.Period) ([]*contracts.ShortInterestPoint, error) {
	return nil, nil
}

func (f *fakeGateway) FetchATSWeekly(_ context.Context, _ string, _ contracts.Period) ([]*contracts.ATSWeeklyPoint, error) {
	return nil, nil
}

func (f *fakeGateway) FetchOptionsOverlay(_ context.Context, _ string, _ contracts.Period) ([]*contracts.OptionsOverlayPoint, error) {
	return nil, nil
}

func (f *fakeGateway) FetchNewSubmissions(_ context.Context, windowStart, windowEnd time.Time) ([]*contracts.Filing, time.Time, error) {
	var out []*contracts.Filing
	for _, s := range f.submissions {
		if !s.FiledAt.Before(windowStart) && s.FiledAt.Before(windowEnd) {
			out = append(out, s)
		}
	}
	return out, f.submissionsHint, nil
}

// dumpHoldings is a series with one qualifying step-down in Q1 2024 for
// manager m-dump, absorbed by m-absorb in the same quarter.
func dumpHoldings() []*contracts.HoldingPoint {
	return []*contracts.HoldingPoint{
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 1, 5), Fraction: 0.6},
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 2, 5), Fraction: 0.55},
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 3, 5), Fraction: 0.52},
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 3, 20), Fraction: 0.3},
		{CIK: "m-absorb", CUSIP: "cusip-ACME", Date: day(2024, 1, 5), Fraction: 0.1},
		{CIK: "m-absorb", CUSIP: "cusip-ACME", Date: day(2024, 3, 25), Fraction: 0.3},
	}
}

func newTestFanout(gw contracts.SignalFetchGateway, repos *memRepos) *Fanout {
	log := testLogger()
	return NewFanout(FanoutDeps{
		Gateway:    gw,
		Aggregator: aggregate.NewAggregator(gw, log),
		Composer:   score.NewComposer(score.DefaultWeights(), log),
		Detector:   events.NewDetector(events.DefaultHighThreshold, log),
		Study:      events.NewStudyEngine(events.DefaultStudyWindows),
		Builder:    graph.NewBuilder(repos.edges, repos.entities, nil, log),
		Issuers:    repos.issuers,
		Entities:   repos.entities,
		Bundles:    repos.bundles,
		Scores:     repos.scores,
		Clusters:   repos.clusters,
		Cursors:    repos.cursors,
	}, log)
}

// drain executes units until no work is due, returning the unit count.
func drain(t *testing.T, runner *durable.Runner) (int, error) {
	t.Helper()
	units := 0
	for i := 0; i < 50; i++ {
		executed, err := runner.RunOnce(context.Background())
		if err != nil {
			return units + 1, err
		}
		if !executed {
			return units, nil
		}
		units++
		time.Sleep(time.Millisecond) // let sub-cadence wake times pass
	}
	t.Fatal("drain did not settle")
	return units, nil
}

func startFanout(t *testing.T, runner *durable.Runner, args FanoutArgs) string {
	t.Helper()
	runID, err := runner.Start(context.Background(), FanoutWorkflow, args)
	require.NoError(t, err)
	return runID
}

func TestFanoutCheckpointCount(t *testing.T) {
	repos := newMemRepos()
	gw := &fakeGateway{holdings: dumpHoldings()}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	// 8 quarters, batch size 3: ceil(8/3) = 3 units
	runID := startFanout(t, runner, FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 1, 1),
		To:               day(2026, 1, 1),
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 3,
	})

	units, err := drain(t, runner)
	require.NoError(t, err)
	assert.Equal(t, 3, units)

	cp, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, durable.StatusCompleted, cp.Status)

	cursor, err := repos.cursors.Get(context.Background(), contracts.PipelineBackfill, "ACME")
	require.NoError(t, err)
	assert.Equal(t, day(2026, 1, 1), cursor.Watermark, "final cursor equals the requested to date")

	assert.Equal(t, 1, gw.resolveCalls, "issuer resolution is memoized across checkpoints")
	assert.Len(t, repos.scores.rows, 8, "one score per quarter")
}

func TestFanoutResumesFromCursor(t *testing.T) {
	repos := newMemRepos()
	require.NoError(t, repos.cursors.Advance(context.Background(), contracts.PipelineBackfill, "ACME", day(2024, 7, 1)))

	gw := &fakeGateway{}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	startFanout(t, runner, FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 1, 1),
		To:               day(2025, 1, 1),
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 4,
	})

	_, err := drain(t, runner)
	require.NoError(t, err)

	require.NotEmpty(t, gw.aggregatePeriods)
	for _, p := range gw.aggregatePeriods {
		assert.False(t, p.Start.Before(day(2024, 7, 1)), "committed quarters must not be reprocessed")
	}
	assert.Len(t, repos.scores.rows, 2, "only Q3 and Q4 remain")
}

func TestFanoutDetectsAndBuildsEdges(t *testing.T) {
	repos := newMemRepos()
	gw := &fakeGateway{holdings: dumpHoldings()}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	startFanout(t, runner, FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 1, 1),
		To:               day(2024, 4, 1),
		RunKind:          contracts.RunKindQuery,
		QuarterBatchSize: 1,
	})
	_, err := drain(t, runner)
	require.NoError(t, err)

	require.Len(t, repos.clusters.rows, 1)
	for _, cluster := range repos.clusters.rows {
		assert.Equal(t, "m-dump", cluster.SellerCIK)
		assert.Equal(t, day(2024, 3, 20), cluster.AnchorDate)
		assert.Equal(t, 3, cluster.PreLength)
	}

	require.Len(t, repos.edges.rows, 1)
	for _, edge := range repos.edges.rows {
		assert.Equal(t, "m-dump", edge.SellerCIK)
		assert.Equal(t, "m-absorb", edge.ReceiverCIK, "absorption attributes the counterparty")
	}

	scoreRow, err := repos.scores.GetByPeriod(context.Background(), "cik-ACME", day(2024, 1, 1))
	require.NoError(t, err)
	assert.Positive(t, scoreRow.Breakdown.UptakeSame, "absorbed flow shows up as uptake")
}

func TestFanoutDetectsBoundaryTransition(t *testing.T) {
	// The qualifying run ends in Q1 and the drop lands early in Q2; with
	// quarterly filing cadences most transitions sit on this boundary.
	repos := newMemRepos()
	gw := &fakeGateway{holdings: []*contracts.HoldingPoint{
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 3, 11), Fraction: 0.6},
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 3, 18), Fraction: 0.6},
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 3, 25), Fraction: 0.6},
		{CIK: "m-dump", CUSIP: "cusip-ACME", Date: day(2024, 4, 2), Fraction: 0.1},
	}}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	startFanout(t, runner, FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 1, 1),
		To:               day(2024, 7, 1),
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 2,
	})
	_, err := drain(t, runner)
	require.NoError(t, err)

	require.Len(t, repos.clusters.rows, 1, "the boundary transition yields exactly one cluster")
	for _, cluster := range repos.clusters.rows {
		assert.Equal(t, "m-dump", cluster.SellerCIK)
		assert.Equal(t, day(2024, 4, 2), cluster.AnchorDate, "anchored on the drop observation")
		assert.Equal(t, 3, cluster.PreLength, "the prior quarter's run counts in full")
		assert.InDelta(t, -0.5, cluster.Delta, 1e-9)
	}
	require.Len(t, repos.edges.rows, 1)
}

func TestFanoutIdempotentRecompute(t *testing.T) {
	repos := newMemRepos()
	gw := &fakeGateway{holdings: dumpHoldings()}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	args := FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 1, 1),
		To:               day(2024, 7, 1),
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 2,
	}

	run := func() ([]byte, []byte) {
		startFanout(t, runner, args)
		_, err := drain(t, runner)
		require.NoError(t, err)

		scoreRow, err := repos.scores.GetByPeriod(context.Background(), "cik-ACME", day(2024, 1, 1))
		require.NoError(t, err)
		scoreJSON, err := json.Marshal(scoreRow)
		require.NoError(t, err)

		require.Len(t, repos.edges.rows, 1, "recomputation must not duplicate edges")
		var edgeJSON []byte
		for _, edge := range repos.edges.rows {
			edgeJSON, err = json.Marshal(edge)
			require.NoError(t, err)
		}
		return scoreJSON, edgeJSON
	}

	firstScore, firstEdge := run()

	// Second run over the same range: reset the cursor so quarters recompute
	require.NoError(t, repos.cursors.Reset(context.Background(), contracts.PipelineBackfill, "ACME", day(2024, 1, 1)))
	secondScore, secondEdge := run()

	assert.Equal(t, firstScore, secondScore, "recomputed score rows are byte-identical")
	assert.Equal(t, firstEdge, secondEdge, "recomputed edge rows are byte-identical")
}

func TestFanoutInvalidArgs(t *testing.T) {
	repos := newMemRepos()
	gw := &fakeGateway{}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	runID := startFanout(t, runner, FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 7, 1),
		To:               day(2024, 1, 1), // inverted
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 2,
	})

	_, err := drain(t, runner)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInputInvalid)

	cp, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, durable.StatusFailed, cp.Status)
	assert.Zero(t, gw.resolveCalls, "input errors are rejected before any fetch")
}

func TestFanoutTerminalFailureIsIsolated(t *testing.T) {
	repos := newMemRepos()
	gw := &fakeGateway{
		holdings:   dumpHoldings(),
		failTicker: "BROKEN",
		failErr:    contracts.Terminal(assert.AnError),
	}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(FanoutWorkflow, newTestFanout(gw, repos).Execute)

	brokenID := startFanout(t, runner, FanoutArgs{
		Ticker:           "BROKEN",
		From:             day(2024, 1, 1),
		To:               day(2024, 4, 1),
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 1,
	})
	_, err := drain(t, runner)
	require.Error(t, err)

	var sre *contracts.SubRangeError
	require.ErrorAs(t, err, &sre, "failures carry ticker and sub-range context")
	assert.Equal(t, "BROKEN", sre.Ticker)
	assert.Equal(t, "holdings", sre.Signal)

	cp, err := store.Get(context.Background(), brokenID)
	require.NoError(t, err)
	assert.Equal(t, durable.StatusFailed, cp.Status)

	// An independent ticker still succeeds
	okID := startFanout(t, runner, FanoutArgs{
		Ticker:           "ACME",
		From:             day(2024, 1, 1),
		To:               day(2024, 4, 1),
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: 1,
	})
	_, err = drain(t, runner)
	require.NoError(t, err)

	cp, err = store.Get(context.Background(), okID)
	require.NoError(t, err)
	assert.Equal(t, durable.StatusCompleted, cp.Status)
}

func TestPollerCursorMonotonic(t *testing.T) {
	repos := newMemRepos()
	gw := &fakeGateway{
		submissions: []*contracts.Filing{
			{CIK: "0001234567", Name: "Example Capital LP", Kind: "SC 13D", FiledAt: time.Now().UTC().Add(-time.Hour)},
		},
		submissionsHint: time.Now().UTC().Add(-30 * time.Minute), // behind the window end
	}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	poller := NewPoller(gw, repos.entities, repos.cursors, testLogger())
	runner.Register(PollerWorkflow, poller.Execute)

	runID, err := runner.Start(context.Background(), PollerWorkflow, PollerArgs{
		Source:   "edgar",
		Lookback: 2 * time.Hour,
		Cadence:  time.Nanosecond,
	})
	require.NoError(t, err)

	var last time.Time
	for cycle := 0; cycle < 4; cycle++ {
		time.Sleep(time.Millisecond)
		executed, err := runner.RunOnce(context.Background())
		require.NoError(t, err)
		require.True(t, executed)

		cursor, err := repos.cursors.Get(context.Background(), contracts.PipelinePoller, "edgar")
		require.NoError(t, err)
		assert.False(t, cursor.Watermark.Before(last), "cursor never moves backwards")
		last = cursor.Watermark
	}

	cp, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, durable.StatusPending, cp.Status, "the poller has no terminal state")
	assert.Equal(t, 4, cp.Iteration)

	_, err = repos.entities.GetByKey(context.Background(), "0001234567", "", contracts.EntityKindManager)
	assert.NoError(t, err, "new filers are seeded as graph nodes")
}

func TestPollerFirstWindowUsesLookback(t *testing.T) {
	repos := newMemRepos()
	old := time.Now().UTC().Add(-3 * time.Hour)
	gw := &fakeGateway{
		submissions: []*contracts.Filing{
			{CIK: "0001", Name: "Too Old", FiledAt: old},
			{CIK: "0002", Name: "Recent", FiledAt: time.Now().UTC().Add(-time.Minute)},
		},
	}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(PollerWorkflow, NewPoller(gw, repos.entities, repos.cursors, testLogger()).Execute)

	_, err := runner.Start(context.Background(), PollerWorkflow, PollerArgs{
		Source:   "edgar",
		Lookback: time.Hour,
		Cadence:  time.Nanosecond,
	})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	executed, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, executed)

	_, err = repos.entities.GetByKey(context.Background(), "0002", "", contracts.EntityKindManager)
	assert.NoError(t, err)
	_, err = repos.entities.GetByKey(context.Background(), "0001", "", contracts.EntityKindManager)
	assert.ErrorIs(t, err, contracts.ErrNotFound, "filings before the lookback are outside the first window")
}

func TestPollerExplicitCursorRewindsWindow(t *testing.T) {
	repos := newMemRepos()
	old := time.Now().UTC().Add(-3 * time.Hour)
	gw := &fakeGateway{
		submissions: []*contracts.Filing{
			{CIK: "0001", Name: "Past Lookback", FiledAt: old},
		},
	}
	store := durable.NewMemoryStore()
	runner := durable.NewRunner(store, testLogger(), time.Millisecond)
	runner.Register(PollerWorkflow, NewPoller(gw, repos.entities, repos.cursors, testLogger()).Execute)

	// An operator rewind sets the cursor explicitly; it overrides the
	// lookback default for the first window.
	_, err := runner.Start(context.Background(), PollerWorkflow, PollerArgs{
		Source:   "edgar",
		Lookback: time.Hour,
		Cadence:  time.Nanosecond,
		Cursor:   old.Add(-time.Minute),
	})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	executed, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, executed)

	_, err = repos.entities.GetByKey(context.Background(), "0001", "", contracts.EntityKindManager)
	assert.NoError(t, err, "the rewound window re-covers filings past the lookback")
}

func TestPollerInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args PollerArgs
	}{
		{"missing source", PollerArgs{Lookback: time.Hour, Cadence: time.Minute}},
		{"zero lookback", PollerArgs{Source: "edgar", Cadence: time.Minute}},
		{"zero cadence", PollerArgs{Source: "edgar", Lookback: time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.args.Validate(), contracts.ErrInputInvalid)
		})
	}
}

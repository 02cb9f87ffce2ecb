package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/seclens/rotograph/internal/aggregate"
	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/events"
	"github.com/seclens/rotograph/internal/graph"
	"github.com/seclens/rotograph/internal/score"
	"github.com/seclens/rotograph/pkg/logger"
)

// FanoutWorkflow is the checkpoint registry name of the backfill/daily
// fan-out controller.
const FanoutWorkflow = "fanout"

// DefaultPassiveCIKs are the large index-fund complexes whose absorbed flow
// counts toward the passive share of uptake.
var DefaultPassiveCIKs = map[string]bool{
	"0000102909": true, // Vanguard Group
	"0001364742": true, // BlackRock
	"0000093751": true, // State Street
}

// FanoutArgs is the entire resumable state of one fan-out run. It is
// serialized into the checkpoint record; nothing outside it survives a
// checkpoint boundary.
type FanoutArgs struct {
	Ticker           string            `json:"ticker"`
	CIK              string            `json:"cik,omitempty"` // memoized after first resolution
	From             time.Time         `json:"from"`
	To               time.Time         `json:"to"`
	RunKind          contracts.RunKind `json:"run_kind"`
	QuarterBatchSize int               `json:"quarter_batch_size"`
}

// Fanout drives one ticker's date range through the full pipeline: resolve,
// aggregate, detect, compose, build edges, one quarter at a time, strictly
// ascending. After QuarterBatchSize quarters it checkpoints instead of
// looping, so in-process state stays bounded for arbitrarily long ranges.
type Fanout struct {
	gateway    contracts.SignalFetchGateway
	aggregator *aggregate.Aggregator
	composer   *score.Composer
	detector   *events.Detector
	study      *events.StudyEngine
	builder    *graph.Builder

	issuers  contracts.IssuerRepository
	entities contracts.EntityRepository
	bundles  contracts.SignalBundleRepository
	scores   contracts.ScoreRepository
	clusters contracts.ClusterRepository
	cursors  contracts.CursorRepository

	passiveCIKs map[string]bool
	logger      *logger.Logger
}

// FanoutDeps wires the fan-out controller's collaborators.
type FanoutDeps struct {
	Gateway    contracts.SignalFetchGateway
	Aggregator *aggregate.Aggregator
	Composer   *score.Composer
	Detector   *events.Detector
	Study      *events.StudyEngine
	Builder    *graph.Builder

	Issuers  contracts.IssuerRepository
	Entities contracts.EntityRepository
	Bundles  contracts.SignalBundleRepository
	Scores   contracts.ScoreRepository
	Clusters contracts.ClusterRepository
	Cursors  contracts.CursorRepository

	PassiveCIKs map[string]bool
}

// NewFanout creates the fan-out controller.
func NewFanout(deps FanoutDeps, log *logger.Logger) *Fanout {
	passive := deps.PassiveCIKs
	if passive == nil {
		passive = DefaultPassiveCIKs
	}

	return &Fanout{
		gateway:     deps.Gateway,
		aggregator:  deps.Aggregator,
		composer:    deps.Composer,
		detector:    deps.Detector,
		study:       deps.Study,
		builder:     deps.Builder,
		issuers:     deps.Issuers,
		entities:    deps.Entities,
		bundles:     deps.Bundles,
		scores:      deps.Scores,
		clusters:    deps.Clusters,
		cursors:     deps.Cursors,
		passiveCIKs: passive,
		logger:      log.WithField("module", "pipeline"),
	}
}

// Validate rejects malformed run arguments before any fetch.
func (a FanoutArgs) Validate() error {
	if a.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", contracts.ErrInputInvalid)
	}
	if !a.RunKind.Valid() {
		return fmt.Errorf("%w: unknown run kind %q", contracts.ErrInputInvalid, a.RunKind)
	}
	if !a.To.After(a.From) {
		return fmt.Errorf("%w: empty date range", contracts.ErrInputInvalid)
	}
	if a.QuarterBatchSize < 1 {
		return fmt.Errorf("%w: quarter batch size must be >= 1", contracts.ErrInputInvalid)
	}
	return nil
}

// Execute runs one bounded unit of work: up to QuarterBatchSize quarters.
// Progress is committed per quarter through the ingestion cursor, so a
// restarted run never reprocesses an already-committed quarter.
func (f *Fanout) Execute(ctx context.Context, rt durable.Runtime, raw json.RawMessage) (durable.Outcome, error) {
	var args FanoutArgs
	if err := durable.DecodeArgs(raw, &args); err != nil {
		return durable.Outcome{}, contracts.Terminal(err)
	}
	if err := args.Validate(); err != nil {
		return durable.Outcome{}, contracts.Terminal(err)
	}

	issuer, err := f.resolveIssuer(ctx, rt, &args)
	if err != nil {
		return durable.Outcome{}, err
	}

	start := args.From
	if cursor, err := f.cursors.Get(ctx, contracts.PipelineBackfill, args.Ticker); err == nil && cursor.Watermark.After(start) {
		start = cursor.Watermark
	}

	quarters := Partition(start, args.To)
	if len(quarters) == 0 {
		f.logger.WithFields(map[string]interface{}{
			"ticker":     args.Ticker,
			"iterations": rt.Iteration() + 1,
		}).Info("Fan-out run complete")
		return durable.Done(), nil
	}

	batch := quarters
	if len(batch) > args.QuarterBatchSize {
		batch = batch[:args.QuarterBatchSize]
	}

	for _, quarter := range batch {
		if err := f.processQuarter(ctx, rt, issuer, quarter); err != nil {
			return durable.Outcome{}, err
		}
		if err := f.persist(ctx, rt, "advance_cursor", func(ctx context.Context) error {
			return f.cursors.Advance(ctx, contracts.PipelineBackfill, args.Ticker, quarter.End)
		}); err != nil {
			return durable.Outcome{}, err
		}
	}

	if len(quarters) > len(batch) {
		return durable.Continue(args), nil
	}
	return durable.Done(), nil
}

// resolveIssuer resolves the ticker once and memoizes the CIK in the args,
// so later iterations skip the lookup entirely.
func (f *Fanout) resolveIssuer(ctx context.Context, rt durable.Runtime, args *FanoutArgs) (*contracts.Issuer, error) {
	if args.CIK != "" {
		issuer, err := f.issuers.GetByCIK(ctx, args.CIK)
		if err != nil {
			return nil, fmt.Errorf("load issuer %s: %w", args.CIK, err)
		}
		return issuer, nil
	}

	var resolved *contracts.Issuer
	err := rt.Call(ctx, "resolve_issuer", durable.DefaultFetchPolicy, func(ctx context.Context) error {
		issuer, err := f.gateway.ResolveIssuer(ctx, args.Ticker)
		if err != nil {
			return err
		}
		resolved = issuer
		return nil
	})
	if err != nil {
		return nil, err
	}

	resolved.Resolved = rt.Now()
	if err := f.persist(ctx, rt, "upsert_issuer", func(ctx context.Context) error {
		return f.issuers.Upsert(ctx, resolved)
	}); err != nil {
		return nil, err
	}

	if err := f.persist(ctx, rt, "upsert_issuer_entity", func(ctx context.Context) error {
		_, err := f.entities.Upsert(ctx, &contracts.Entity{
			CIK:    resolved.CIK,
			Kind:   contracts.EntityKindIssuer,
			Name:   resolved.Name,
			Ticker: resolved.Ticker,
		})
		return err
	}); err != nil {
		return nil, err
	}

	args.CIK = resolved.CIK
	return resolved, nil
}

// processQuarter runs one sub-range end to end. Nothing is persisted until
// every sub-signal has been fetched; a failure here leaves no partial state.
func (f *Fanout) processQuarter(ctx context.Context, rt durable.Runtime, issuer *contracts.Issuer, quarter contracts.Period) error {
	next := NextQuarter(quarter)

	var res *aggregate.Result
	err := rt.Call(ctx, "aggregate", durable.DefaultFetchPolicy, func(ctx context.Context) error {
		r, err := f.aggregator.Aggregate(ctx, issuer, quarter, next)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return err
	}

	if err := f.persist(ctx, rt, "upsert_bundle", func(ctx context.Context) error {
		return f.bundles.Upsert(ctx, res.Bundle)
	}); err != nil {
		return err
	}

	// Detect over the full fetched span so runs crossing the quarter
	// boundary still qualify, then keep only clusters anchored in this
	// quarter. Anchors outside it belong to the adjacent quarter's pass,
	// which sees the same transition and keeps it exactly once.
	all := f.detector.DetectFromHoldings(res.Holdings)
	clusters := make([]*contracts.DumpEventCluster, 0, len(all))
	for _, cluster := range all {
		if quarter.Contains(cluster.AnchorDate) {
			clusters = append(clusters, cluster)
		}
	}

	record := f.composeScore(issuer, quarter, next, res, clusters)
	if err := f.persist(ctx, rt, "upsert_score", func(ctx context.Context) error {
		return f.scores.Upsert(ctx, record)
	}); err != nil {
		return err
	}

	for _, cluster := range clusters {
		if err := f.persist(ctx, rt, "upsert_cluster", func(ctx context.Context) error {
			return f.clusters.Upsert(ctx, cluster)
		}); err != nil {
			return err
		}

		study := f.study.Run(cluster, observationsFor(res.Holdings, cluster))
		if study.Insufficient {
			f.logger.WithField("cluster", cluster.ClusterID).Warn("Event study has insufficient observations")
		}

		if err := f.persist(ctx, rt, "build_edge", func(ctx context.Context) error {
			_, err := f.builder.Build(ctx, graph.BuildInput{
				Cluster:  cluster,
				Score:    record,
				Holdings: res.Holdings,
				Period:   quarter,
			})
			return err
		}); err != nil {
			return err
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"ticker":    issuer.Ticker,
		"quarter":   quarter.Start.Format("2006-01-02"),
		"clusters":  len(clusters),
		"composite": record.Composite,
	}).Info("Processed quarter")

	return nil
}

// composeScore reduces one quarter's fetched signals to a score record.
// Uptake is anchored on the quarter's largest detected step-down; without a
// cluster there is no dump to absorb and uptake stays zero.
func (f *Fanout) composeScore(issuer *contracts.Issuer, quarter, next contracts.Period, res *aggregate.Result, clusters []*contracts.DumpEventCluster) *contracts.ScoreRecord {
	in := score.Inputs{
		ShortRelief:  score.ShortRelief(res.ShortInterest),
		UHFSame:      score.UHFOverlay(res.ATSSame),
		UHFNext:      score.UHFOverlay(res.ATSNext),
		OptSame:      score.OptionsOverlay(res.OptionsSame),
		OptNext:      score.OptionsOverlay(res.OptionsNext),
		IndexWindows: IndexWindowsForRange(quarter.Start, next.End),
	}

	if anchor := principalCluster(clusters); anchor != nil {
		in.Anchor = anchor.AnchorDate
		in.Uptake = score.Uptake(score.UptakeFromHoldings(res.Holdings, anchor.SellerCIK, quarter, next, f.passiveCIKs))
	}

	return f.composer.Compose(res.Bundle, in)
}

// principalCluster picks the cluster with the largest drop; ties break on
// cluster id so recomputation is stable.
func principalCluster(clusters []*contracts.DumpEventCluster) *contracts.DumpEventCluster {
	if len(clusters) == 0 {
		return nil
	}
	sorted := make([]*contracts.DumpEventCluster, len(clusters))
	copy(sorted, clusters)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := -sorted[i].Delta, -sorted[j].Delta
		if di != dj {
			return di > dj
		}
		return sorted[i].ClusterID < sorted[j].ClusterID
	})
	return sorted[0]
}

// observationsFor extracts the seller's dated series around a cluster.
func observationsFor(points []*contracts.HoldingPoint, cluster *contracts.DumpEventCluster) []events.Observation {
	var obs []events.Observation
	for _, p := range points {
		if p.CIK == cluster.SellerCIK && p.CUSIP == cluster.CUSIP {
			obs = append(obs, events.Observation{Date: p.Date, Fraction: p.Fraction})
		}
	}
	return obs
}

func (f *Fanout) persist(ctx context.Context, rt durable.Runtime, name string, fn func(context.Context) error) error {
	return rt.Call(ctx, name, durable.DefaultPersistPolicy, fn)
}

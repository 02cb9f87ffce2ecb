package commands

import (
	"context"
	"fmt"

	"github.com/seclens/rotograph/internal/aggregate"
	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/events"
	"github.com/seclens/rotograph/internal/gateway"
	"github.com/seclens/rotograph/internal/graph"
	"github.com/seclens/rotograph/internal/pipeline"
	"github.com/seclens/rotograph/internal/score"
	"github.com/seclens/rotograph/internal/store"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/database"
	"github.com/seclens/rotograph/pkg/logger"
	"github.com/seclens/rotograph/pkg/redis"
)

// core holds the shared process collaborators every command needs.
type core struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client
	store *store.Store
}

// buildCore loads config, connects to Postgres (and Redis when enabled),
// and wires the repositories.
func buildCore() (*core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &core{
		cfg:   cfg,
		log:   log,
		db:    db,
		redis: rdb,
		store: store.New(db.Pool),
	}, nil
}

// Close releases the core's connections.
func (c *core) Close() {
	if c.redis != nil {
		c.redis.Close()
	}
	c.db.Close()
}

// buildGateway constructs the external signal gateway, sharing the Redis
// rate limiter across providers when Redis is enabled.
func (c *core) buildGateway() (*gateway.Gateway, error) {
	gw, err := gateway.New(c.cfg, c.log)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}
	if c.redis.Enabled() {
		gw.WithRateLimiter(redis.NewRateLimiter(c.redis, "rl"))
		gw.WithCache(redis.NewCache(c.redis, "rotograph"))
	}
	return gw, nil
}

// buildWorkflows wires the fan-out and poller workflows onto a runner
// polling the checkpoint table. The publisher receives every freshly built
// rotation edge.
func (c *core) buildWorkflows(gw *gateway.Gateway, publisher contracts.EdgePublisher) (*durable.Runner, error) {
	weights := score.DefaultWeights()
	if path := c.cfg.Pipeline.WeightsFile; path != "" {
		loaded, err := score.LoadWeights(path)
		if err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		}
		weights = loaded
	}

	fanout := pipeline.NewFanout(pipeline.FanoutDeps{
		Gateway:    gw,
		Aggregator: aggregate.NewAggregator(gw, c.log),
		Composer:   score.NewComposer(weights, c.log),
		Detector:   events.NewDetector(events.DefaultHighThreshold, c.log),
		Study:      events.NewStudyEngine(events.DefaultStudyWindows),
		Builder:    graph.NewBuilder(c.store.Edges, c.store.Entities, publisher, c.log),

		Issuers:  c.store.Issuers,
		Entities: c.store.Entities,
		Bundles:  c.store.Bundles,
		Scores:   c.store.Scores,
		Clusters: c.store.Clusters,
		Cursors:  c.store.Cursors,
	}, c.log)

	poller := pipeline.NewPoller(gw, c.store.Entities, c.store.Cursors, c.log)

	runner := durable.NewRunner(c.store.Checkpoints, c.log, c.cfg.Pipeline.RunnerPollEvery)
	runner.Register(pipeline.FanoutWorkflow, fanout.Execute)
	runner.Register(pipeline.PollerWorkflow, poller.Execute)
	return runner, nil
}

// migrate applies the embedded schema migrations.
func (c *core) migrate(ctx context.Context) error {
	return store.Migrate(ctx, c.db.Pool)
}

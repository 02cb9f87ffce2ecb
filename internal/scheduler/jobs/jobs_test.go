package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
)

func testConfig(tickers ...string) *config.Config {
	return &config.Config{
		Env: "test", LogLevel: "error", LogFormat: "json",
		Pipeline: config.PipelineConfig{
			QuarterBatchSize: 4,
			PollLookback:     24 * time.Hour,
			PollCadence:      10 * time.Minute,
			DailyTickers:     tickers,
		},
	}
}

func TestDailyRotationEnqueuesPerTicker(t *testing.T) {
	cfg := testConfig("AAPL", "MSFT")
	store := durable.NewMemoryStore()
	job := NewDailyRotationJob(store, cfg, logger.New(cfg))

	require.NoError(t, job.Run(context.Background()))

	// both runs must be claimable
	claimed := 0
	for {
		cp, err := store.ClaimDue(context.Background(), time.Now().Add(time.Minute))
		require.NoError(t, err)
		if cp == nil {
			break
		}
		claimed++
		assert.Equal(t, "fanout", cp.Workflow)
	}
	assert.Equal(t, 2, claimed)
}

func TestDailyRotationEmptyUniverse(t *testing.T) {
	cfg := testConfig()
	job := NewDailyRotationJob(durable.NewMemoryStore(), cfg, logger.New(cfg))
	require.NoError(t, job.Run(context.Background()))
}

func TestPollerWatchdogEnqueuesMissingLoop(t *testing.T) {
	cfg := testConfig()
	store := durable.NewMemoryStore()
	job := NewPollerWatchdogJob(store, cfg, logger.New(cfg))

	require.NoError(t, job.Run(context.Background()))

	cp, err := store.Get(context.Background(), "poller-edgar")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "poller", cp.Workflow)

	// second pass leaves the existing loop alone
	require.NoError(t, job.Run(context.Background()))
	again, err := store.Get(context.Background(), "poller-edgar")
	require.NoError(t, err)
	assert.Equal(t, cp.UpdatedAt, again.UpdatedAt)
}

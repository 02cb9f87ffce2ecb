package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/pipeline"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
)

// DailyRotationJob refreshes rotation scores for the tracked universe once
// the day's disclosures have been indexed.
type DailyRotationJob struct {
	checkpoints durable.CheckpointStore
	config      *config.Config
	logger      *logger.Logger
}

// NewDailyRotationJob creates a new daily rotation job
func NewDailyRotationJob(checkpoints durable.CheckpointStore, cfg *config.Config, log *logger.Logger) *DailyRotationJob {
	return &DailyRotationJob{
		checkpoints: checkpoints,
		config:      cfg,
		logger:      log,
	}
}

// Name returns the job name
func (j *DailyRotationJob) Name() string {
	return "daily_rotation"
}

// Schedule returns the cron schedule (every day at 10:10 PM UTC, after the
// day's EDGAR index is complete)
func (j *DailyRotationJob) Schedule() string {
	return "0 10 22 * * *"
}

// Run enqueues one fan-out run per tracked ticker covering the current and
// previous quarter. Committed quarters are skipped by the cursor, so the
// daily re-run only recomputes the open quarter.
func (j *DailyRotationJob) Run(ctx context.Context) error {
	tickers := j.config.Pipeline.DailyTickers
	if len(tickers) == 0 {
		j.logger.Warn("No daily tickers configured, skipping rotation refresh")
		return nil
	}

	now := time.Now().UTC()
	from := pipeline.QuarterStart(now).AddDate(0, -3, 0)
	to := now.Truncate(24 * time.Hour)

	var failed int
	for _, ticker := range tickers {
		runID, err := pipeline.StartFanout(ctx, j.checkpoints, pipeline.FanoutArgs{
			Ticker:           ticker,
			From:             from,
			To:               to,
			RunKind:          contracts.RunKindDaily,
			QuarterBatchSize: j.config.Pipeline.QuarterBatchSize,
		})
		if err != nil {
			failed++
			j.logger.WithError(err).WithField("ticker", ticker).Error("Failed to enqueue daily run")
			continue
		}

		j.logger.WithFields(map[string]interface{}{
			"ticker": ticker,
			"run_id": runID,
		}).Info("Daily run enqueued")
	}

	if failed > 0 {
		return fmt.Errorf("daily rotation: %d of %d tickers failed to enqueue", failed, len(tickers))
	}
	return nil
}

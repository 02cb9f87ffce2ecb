package jobs

import (
	"context"
	"fmt"

	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/internal/pipeline"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
)

// EDGARPollerSource is the cursor key of the submission poller loop.
const EDGARPollerSource = "edgar"

// PollerWatchdogJob keeps the submission poller loop alive: if its
// checkpoint record is missing it is re-enqueued, if it has failed the
// watchdog raises the alarm in the logs.
type PollerWatchdogJob struct {
	checkpoints durable.CheckpointStore
	config      *config.Config
	logger      *logger.Logger
}

// NewPollerWatchdogJob creates a new poller watchdog job
func NewPollerWatchdogJob(checkpoints durable.CheckpointStore, cfg *config.Config, log *logger.Logger) *PollerWatchdogJob {
	return &PollerWatchdogJob{
		checkpoints: checkpoints,
		config:      cfg,
		logger:      log,
	}
}

// Name returns the job name
func (j *PollerWatchdogJob) Name() string {
	return "poller_watchdog"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *PollerWatchdogJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run checks the poller loop's checkpoint and re-enqueues it when absent.
func (j *PollerWatchdogJob) Run(ctx context.Context) error {
	cp, err := j.checkpoints.Get(ctx, "poller-"+EDGARPollerSource)
	if err != nil {
		return fmt.Errorf("check poller checkpoint: %w", err)
	}

	if cp == nil {
		runID, err := pipeline.StartPoller(ctx, j.checkpoints, pipeline.PollerArgs{
			Source:   EDGARPollerSource,
			Lookback: j.config.Pipeline.PollLookback,
			Cadence:  j.config.Pipeline.PollCadence,
		})
		if err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		j.logger.WithField("run_id", runID).Info("Poller loop enqueued")
		return nil
	}

	if cp.Status == durable.StatusFailed {
		j.logger.WithFields(map[string]interface{}{
			"run_id": cp.RunID,
			"error":  cp.LastError,
		}).Error("Poller loop has failed and needs an operator reset")
	}
	return nil
}

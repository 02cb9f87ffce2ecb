package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/pipeline"
	"github.com/seclens/rotograph/internal/scheduler/jobs"
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Enqueue the submission poller loop",
	Long: `Enqueues the continuous EDGAR submission poller. The loop fetches
newly indexed filings each cycle, seeds filer entities, advances its
watermark, and sleeps via checkpoint until the next cycle.

One loop exists per source; enqueueing twice is rejected. --since rewinds
the watermark so the first window re-covers everything from that date.

Example:
  go run ./cmd/rotograph poll
  go run ./cmd/rotograph poll --since 2024-06-01`,
	RunE: runPoll,
}

var pollSince string

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().StringVar(&pollSince, "since", "", "rewind the watermark to this date (YYYY-MM-DD)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	var since time.Time
	if pollSince != "" {
		parsed, err := time.Parse("2006-01-02", pollSince)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		since = parsed
	}

	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	if err := c.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if !since.IsZero() {
		if err := c.store.Cursors.Reset(ctx, contracts.PipelinePoller, jobs.EDGARPollerSource, since); err != nil {
			return fmt.Errorf("reset poller cursor: %w", err)
		}
	}

	runID, err := pipeline.StartPoller(ctx, c.store.Checkpoints, pipeline.PollerArgs{
		Source:   jobs.EDGARPollerSource,
		Lookback: c.cfg.Pipeline.PollLookback,
		Cadence:  c.cfg.Pipeline.PollCadence,
		Cursor:   since,
	})
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Poller loop enqueued\n")
	fmt.Printf("  run id:   %s\n", runID)
	fmt.Printf("  lookback: %s\n", c.cfg.Pipeline.PollLookback)
	fmt.Printf("  cadence:  %s\n", c.cfg.Pipeline.PollCadence)
	if !since.IsZero() {
		fmt.Printf("  since:    %s\n", pollSince)
	}
	return nil
}

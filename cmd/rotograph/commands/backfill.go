package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/pipeline"
)

// backfillCmd represents the backfill command
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Enqueue a historical fan-out run",
	Long: `Enqueues a fan-out run covering the given date range, quarter by
quarter. The run executes on whichever runner claims it; use the status
command to follow progress.

Example:
  go run ./cmd/rotograph backfill --ticker AAPL --from 2020-01-01 --to 2024-01-01
  go run ./cmd/rotograph backfill --ticker BRK-B --from 2018-01-01 --to 2024-01-01 --batch 8`,
	RunE: runBackfill,
}

var (
	backfillTicker string
	backfillFrom   string
	backfillTo     string
	backfillBatch  int
)

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().StringVar(&backfillTicker, "ticker", "", "issuer ticker (required)")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "start date, inclusive (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "end date, exclusive (YYYY-MM-DD)")
	backfillCmd.Flags().IntVar(&backfillBatch, "batch", 0, "quarters per unit of work (default from config)")
	backfillCmd.MarkFlagRequired("ticker")
	backfillCmd.MarkFlagRequired("from")
	backfillCmd.MarkFlagRequired("to")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	from, err := time.Parse("2006-01-02", backfillFrom)
	if err != nil {
		return fmt.Errorf("parse --from: %w", err)
	}
	to, err := time.Parse("2006-01-02", backfillTo)
	if err != nil {
		return fmt.Errorf("parse --to: %w", err)
	}

	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	batch := backfillBatch
	if batch <= 0 {
		batch = c.cfg.Pipeline.QuarterBatchSize
	}

	runID, err := pipeline.StartFanout(cmd.Context(), c.store.Checkpoints, pipeline.FanoutArgs{
		Ticker:           backfillTicker,
		From:             from,
		To:               to,
		RunKind:          contracts.RunKindBackfill,
		QuarterBatchSize: batch,
	})
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Backfill enqueued\n")
	fmt.Printf("  ticker: %s\n", backfillTicker)
	fmt.Printf("  range:  %s .. %s\n", backfillFrom, backfillTo)
	fmt.Printf("  run id: %s\n", runID)
	fmt.Printf("\nFollow it with: go run ./cmd/rotograph status %s\n", runID)
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// runnerCmd represents the runner command
var runnerCmd = &cobra.Command{
	Use:   "runner",
	Short: "Start a headless checkpoint runner",
	Long: `Runs the checkpoint worker loop without the API server: claims due
units of work from the checkpoint table, executes them, and writes the
successor checkpoints. Multiple runner processes can share one database;
the claim is atomic so no unit runs twice.

Example:
  go run ./cmd/rotograph runner`,
	RunE: runRunner,
}

func init() {
	rootCmd.AddCommand(runnerCmd)
}

func runRunner(cmd *cobra.Command, args []string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gw, err := c.buildGateway()
	if err != nil {
		return err
	}

	// headless: no stream subscribers, edges go to the store only
	runner, err := c.buildWorkflows(gw, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		c.log.Info("Stopping runner...")
		cancel()
	}()

	fmt.Println("Runner started, press Ctrl+C to stop")
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

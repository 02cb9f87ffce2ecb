package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seclens/rotograph/internal/api"
	"github.com/seclens/rotograph/internal/api/handlers"
	"github.com/seclens/rotograph/internal/explain"
	"github.com/seclens/rotograph/internal/graph"
	"github.com/seclens/rotograph/internal/scheduler"
	"github.com/seclens/rotograph/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server together with the checkpoint runner and
the cron scheduler, so a single process serves queries, executes due
units of work, and keeps the daily jobs firing.

Endpoints:
  GET  /health                              - Health check
  POST /api/runs                            - Enqueue a fan-out run
  GET  /api/runs/{id}                       - Run status
  GET  /api/scores/{ticker}                 - Composite scores over a window
  GET  /api/graph/{ticker}/neighborhood     - Rotation neighborhood
  POST /api/explain                         - Generate an edge explanation
  GET  /api/explain/{id}                    - Fetch an explanation
  GET  /api/stream                          - Live edge websocket

Example:
  go run ./cmd/rotograph api
  go run ./cmd/rotograph api --port 8092`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.Close()

	if apiPort != "" {
		c.cfg.Port = apiPort
	}

	log := c.log
	log.WithFields(map[string]interface{}{
		"port": c.cfg.Port,
		"env":  c.cfg.Env,
	}).Info("Initializing API server")

	if err := c.migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gw, err := c.buildGateway()
	if err != nil {
		return err
	}

	// The stream hub doubles as the edge publisher for in-process runs.
	hub := handlers.NewStreamHub(log)

	runner, err := c.buildWorkflows(gw, hub)
	if err != nil {
		return err
	}

	model, err := explain.NewModel(c.cfg, log)
	if err != nil {
		return fmt.Errorf("build explanation model: %w", err)
	}
	explainService := explain.NewService(
		c.store.Edges, c.store.Clusters, c.store.Issuers,
		c.store.Bundles, c.store.Entities, c.store.Explanations,
		model, log,
	)

	finder := graph.NewFinder(c.store.Issuers, c.store.Entities, c.store.Edges, log)

	router := api.NewRouter(
		handlers.NewRunsHandler(c.store.Checkpoints, c.store.Issuers, c.store.Scores, c.cfg.Pipeline.QuarterBatchSize, log),
		handlers.NewGraphHandler(finder, log),
		handlers.NewExplainHandler(explainService, log),
		hub,
		log,
	)

	server := api.New(c.cfg, log, router)

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewDailyRotationJob(c.store.Checkpoints, c.cfg, log)); err != nil {
		return err
	}
	if err := sched.AddJob(jobs.NewPollerWatchdogJob(c.store.Checkpoints, c.cfg, log)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	defer cancelRunner()
	go func() {
		if err := runner.Run(runnerCtx); err != nil && runnerCtx.Err() == nil {
			log.WithError(err).Error("Checkpoint runner stopped")
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\nServer running on http://localhost:%s\n", c.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancelRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

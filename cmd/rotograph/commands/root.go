package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rotograph",
	Short: "Institutional ownership rotation pipeline",
	Long: `Rotograph ingests SEC ownership disclosures, FINRA short interest and
dark-pool volume, and options flow, fuses them into per-quarter rotation
scores, and maintains a queryable graph of who rotated out of a position
and who absorbed it.

Usage:
  go run ./cmd/rotograph [command]

Examples:
  go run ./cmd/rotograph migrate
  go run ./cmd/rotograph api
  go run ./cmd/rotograph runner
  go run ./cmd/rotograph backfill --ticker AAPL --from 2020-01-01 --to 2024-01-01
  go run ./cmd/rotograph poll
  go run ./cmd/rotograph status <run-id>`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seclens/rotograph/internal/durable"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the checkpoint state of a run",
	Long: `Prints the current checkpoint of a run: workflow, iteration,
status, wake time, and the carried arguments.

Example:
  go run ./cmd/rotograph status 5b2c...e1
  go run ./cmd/rotograph status poller-edgar`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.Close()

	cp, err := c.store.Checkpoints.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	fmt.Printf("run:       %s\n", cp.RunID)
	fmt.Printf("workflow:  %s\n", cp.Workflow)
	fmt.Printf("status:    %s\n", statusColor(cp.Status).Sprint(cp.Status))
	fmt.Printf("iteration: %d\n", cp.Iteration)
	fmt.Printf("wake at:   %s\n", cp.WakeAt.UTC().Format("2006-01-02 15:04:05"))
	fmt.Printf("updated:   %s\n", cp.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
	if cp.LastError != "" {
		fmt.Printf("error:     %s\n", color.New(color.FgRed).Sprint(cp.LastError))
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(cp.Args, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("args:\n%s\n", string(out))
	}
	return nil
}

func statusColor(s durable.Status) *color.Color {
	switch s {
	case durable.StatusCompleted:
		return color.New(color.FgGreen)
	case durable.StatusFailed:
		return color.New(color.FgRed)
	case durable.StatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}

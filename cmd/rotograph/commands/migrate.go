package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies the embedded schema migrations to the configured database.
Safe to run repeatedly; already-applied migrations are skipped.

Example:
  go run ./cmd/rotograph migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.migrate(cmd.Context()); err != nil {
		return err
	}

	color.New(color.FgGreen).Println("✓ Schema is up to date")
	return nil
}

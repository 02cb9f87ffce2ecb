package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seclens/rotograph/internal/contracts"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed entities and issuers from a YAML file",
	Long: `Upserts the entities and issuers listed in a YAML seed file. Seeding
is idempotent; re-running with the same file leaves the tables unchanged.

Seed file format:
  entities:
    - cik: "0000102909"
      kind: manager
      name: Vanguard Group Inc
  issuers:
    - cik: "0000320193"
      ticker: AAPL
      name: Apple Inc
      cusips: ["037833100"]

Example:
  go run ./cmd/rotograph seed --file seeds/universe.yaml`,
	RunE: runSeed,
}

var seedFile string

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedFile, "file", "", "path to the YAML seed file (required)")
	seedCmd.MarkFlagRequired("file")
}

type seedDoc struct {
	Entities []struct {
		CIK    string `yaml:"cik"`
		Series string `yaml:"series"`
		Kind   string `yaml:"kind"`
		Name   string `yaml:"name"`
		Ticker string `yaml:"ticker"`
	} `yaml:"entities"`
	Issuers []struct {
		CIK    string   `yaml:"cik"`
		Ticker string   `yaml:"ticker"`
		Name   string   `yaml:"name"`
		CUSIPs []string `yaml:"cusips"`
	} `yaml:"issuers"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var doc seedDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	if len(doc.Entities) == 0 && len(doc.Issuers) == 0 {
		return fmt.Errorf("seed file %s contains no entities or issuers", seedFile)
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

	for _, e := range doc.Entities {
		kind := contracts.EntityKind(e.Kind)
		switch kind {
		case contracts.EntityKindManager, contracts.EntityKindIssuer:
		default:
			return fmt.Errorf("entity %s: unknown kind %q", e.CIK, e.Kind)
		}
		if _, err := c.store.Entities.Upsert(ctx, &contracts.Entity{
			CIK:    e.CIK,
			Series: e.Series,
			Kind:   kind,
			Name:   e.Name,
			Ticker: e.Ticker,
		}); err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.CIK, err)
		}
	}

	for _, i := range doc.Issuers {
		if err := c.store.Issuers.Upsert(ctx, &contracts.Issuer{
			CIK:      i.CIK,
			Ticker:   i.Ticker,
			Name:     i.Name,
			CUSIPs:   i.CUSIPs,
			Resolved: time.Now(),
		}); err != nil {
			return fmt.Errorf("upsert issuer %s: %w", i.CIK, err)
		}
	}

	color.New(color.FgGreen).Printf("✓ Seeded\n")
	fmt.Printf("  entities: %d\n", len(doc.Entities))
	fmt.Printf("  issuers:  %d\n", len(doc.Issuers))
	return nil
}

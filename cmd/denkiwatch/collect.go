package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorita/denkiwatch/pkg/models"
)

var collectCmd = &cobra.Command{
	Use:   "collect [date]",
	Short: "Collect usage data for one date",
	Long: `Fetches the finalized usage record for a single date (YYYYMMDD) and stores
it. Without an argument, collects yesterday — the newest date the provider has
finalized.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	date := models.FormatDate(time.Now().AddDate(0, 0, -1))
	if len(args) == 1 {
		if _, err := models.ParseDate(args[0]); err != nil {
			return fmt.Errorf("invalid date %q (want YYYYMMDD): %w", args[0], err)
		}
		date = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	tokens, engine := buildCore(cfg, db, logger)

	ctx := context.Background()
	token, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	results, err := engine.Backfill(ctx, token, []string{date})
	if err != nil {
		return fmt.Errorf("collecting %s: %w", date, err)
	}

	if len(results) == 1 && results[0].Success {
		rec, err := db.GetUsage(date)
		if err == nil && rec != nil {
			fmt.Printf("✓ %s: %.2f kWh, %d yen\n", date, rec.KwhUsed, rec.ChargeYen)
		} else {
			fmt.Printf("✓ %s collected\n", date)
		}
		return nil
	}

	return fmt.Errorf("no data available for %s (try again later)", date)
}

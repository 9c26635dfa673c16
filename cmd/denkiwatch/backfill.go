package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorita/denkiwatch/pkg/models"
)

var (
	backfillFrom string
	backfillTo   string
	backfillDays int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill missing dates in stored history",
	Long: `Finds calendar dates with no stored record and collects them. By default the
trailing 30 days up to yesterday are checked; use --from/--to for an explicit
range or --days to change the window. A date that fails is skipped, not
retried; rerun to pick up dates the provider has finalized since.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "start date (YYYYMMDD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "end date (YYYYMMDD)")
	backfillCmd.Flags().IntVar(&backfillDays, "days", 30, "trailing window when --from/--to are not set")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	to := time.Now().AddDate(0, 0, -1)
	from := time.Now().AddDate(0, 0, -backfillDays)

	if backfillFrom != "" || backfillTo != "" {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be set together")
		}
		var err error
		if from, err = models.ParseDate(backfillFrom); err != nil {
			return fmt.Errorf("invalid --from %q: %w", backfillFrom, err)
		}
		if to, err = models.ParseDate(backfillTo); err != nil {
			return fmt.Errorf("invalid --to %q: %w", backfillTo, err)
		}
		if to.Before(from) {
			return fmt.Errorf("--to is before --from")
		}
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

	gaps, err := engine.FindGaps(from, to)
	if err != nil {
		return fmt.Errorf("finding gaps: %w", err)
	}
	if len(gaps) == 0 {
		fmt.Println("No missing dates found")
		return nil
	}

	fmt.Printf("Found %d missing dates, backfilling...\n", len(gaps))

	ctx := context.Background()
	token, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	results, err := engine.Backfill(ctx, token, gaps)
	if err != nil {
		return fmt.Errorf("backfilling: %w", err)
	}

	stored := 0
	for _, res := range results {
		if res.Success {
			stored++
		} else {
			fmt.Printf("  %s: %s\n", res.Date, res.Error)
		}
	}

	fmt.Printf("✓ Stored %d of %d missing dates\n", stored, len(results))
	return nil
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorita/denkiwatch/pkg/models"
)

var listDays int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage data",
	Long:  `Displays stored daily usage records from the database, newest window first.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listDays, "days", 30, "how many trailing days to show")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	to := models.FormatDate(time.Now())
	from := models.FormatDate(time.Now().AddDate(0, 0, -listDays))

	records, err := db.GetUsageRange(from, to)
	if err != nil {
		return fmt.Errorf("listing usage: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No data found")
		return nil
	}

	fmt.Println("------------------------------------------------------")
	fmt.Printf("%-10s  %10s  %12s  %s\n", "Date", "kWh", "Charge (yen)", "Status")
	fmt.Println("------------------------------------------------------")

	var totalKwh float64
	var totalCharge int
	for _, rec := range records {
		fmt.Printf("%-10s  %10.2f  %12d  %s\n", rec.UsageDate, rec.KwhUsed, rec.ChargeYen, rec.BillingStatus)
		totalKwh += rec.KwhUsed
		totalCharge += rec.ChargeYen
	}

	fmt.Println("------------------------------------------------------")
	fmt.Printf("Total: %.2f kWh, %d yen (%d records)\n", totalKwh, totalCharge, len(records))
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorita/denkiwatch/internal/auth"
	"github.com/jmorita/denkiwatch/internal/collector"
	"github.com/jmorita/denkiwatch/internal/config"
	"github.com/jmorita/denkiwatch/internal/database"
	"github.com/jmorita/denkiwatch/internal/logging"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "denkiwatch",
	Short: "Collect daily electricity usage from the TEPCO portal",
	Long: `Denkiwatch logs into the TEPCO customer portal with a headless browser,
captures a bearer token from the portal's API traffic, fetches finalized daily
kWh and charge figures, and stores them in a local SQLite database.

Run 'denkiwatch serve' for the long-running service with scheduled collection
and an HTTP API, or use the one-shot commands for manual operation.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// openDB opens the database connection
func openDB(cfg *config.Config) (*database.DB, error) {
	path := dbPath
	if path == "" {
		path = cfg.GetDBPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// newLogger builds the process logger from config
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

// buildCore wires the token manager and reconciliation engine used by
// every collection entry point
func buildCore(cfg *config.Config, db *database.DB, logger *slog.Logger) (*auth.Manager, *collector.Engine) {
	authenticator := auth.NewBrowserAuthenticator(
		cfg.Browser.Headless,
		time.Duration(cfg.GetBrowserTimeoutSeconds())*time.Second,
		logger,
	)
	tokens := auth.NewManager(db, authenticator, cfg.TEPCO.Username, cfg.TEPCO.Password, logger)

	fetcher := collector.New(collector.Contract{
		ContractNum:   cfg.TEPCO.ContractNum,
		AccountID:     cfg.TEPCO.AccountID,
		ContractClass: cfg.GetContractClass(),
	}, logger)

	engine := collector.NewEngine(db, fetcher, logger)
	return tokens, engine
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorita/denkiwatch/internal/api"
	"github.com/jmorita/denkiwatch/internal/publisher"
	"github.com/jmorita/denkiwatch/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collection service",
	Long: `Starts the long-running service: the HTTP API for reading stored usage and
triggering collection, plus the scheduled tasks (daily collection, token
checks, weekly gap reconciliation, monthly log retention) when enabled in
config.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	if cfg.MQTT.Enabled {
		pub, err := publisher.New(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting publisher: %w", err)
		}
		defer pub.Close()
		engine.SetPublisher(pub)
		logger.Info("MQTT publisher connected", "broker", cfg.MQTT.Broker)
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(db, tokens, engine, scheduler.Config{
			CollectHour:         cfg.GetCollectHour(),
			TokenCheckInterval:  time.Duration(cfg.GetTokenCheckHours()) * time.Hour,
			ReconcileWindowDays: cfg.GetReconcileWindowDays(),
			PruneLogs:           cfg.Retention.Enabled,
			RetentionDays:       cfg.GetRetentionDays(),
		}, logger)
		sched.Start(context.Background())
	} else {
		logger.Info("Scheduler disabled, running API only")
	}

	handler := api.NewHandler(db, tokens, engine, logger)
	router := api.NewRouter(api.RouterConfig{
		Handler: handler,
		APIKey:  cfg.Server.APIKey,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.GetHost(), cfg.GetPort()),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // collection triggers can run a login flow
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Shutting down", "signal", sig.String())

		if sched != nil {
			sched.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}

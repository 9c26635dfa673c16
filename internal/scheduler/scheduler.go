package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmorita/denkiwatch/internal/database"
	"github.com/jmorita/denkiwatch/pkg/models"
)

// TokenProvider supplies a valid bearer token, authenticating when needed
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Reconciler finds and fills gaps in stored history
type Reconciler interface {
	FindGaps(from, to time.Time) ([]string, error)
	Backfill(ctx context.Context, token string, dates []string) ([]models.DateResult, error)
}

// Storage interface for scheduler operations
type Storage interface {
	IsTokenExpired() (bool, error)
	InsertCollectionLog(entry *database.CollectionLog) error
	CountLogsBefore(cutoff time.Time) (int, error)
	PruneLogsBefore(cutoff time.Time) (int64, error)
}

// Config controls task cadence and the retention policy
type Config struct {
	CollectHour         int           // local hour of the daily collection run
	TokenCheckInterval  time.Duration // cadence of the credential validity check
	ReconcileWindowDays int           // trailing window for the weekly gap check
	PruneLogs           bool          // false leaves the monthly task as a logging placeholder
	RetentionDays       int           // log age cutoff when pruning is enabled
}

// Scheduler drives the periodic collection tasks. Each task runs in its
// own goroutine with a shared cancellation context; Stop cancels pending
// runs and waits for in-flight ones.
type Scheduler struct {
	storage    Storage
	tokens     TokenProvider
	reconciler Reconciler
	cfg        Config
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler
func New(storage Storage, tokens TokenProvider, reconciler Reconciler, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		storage:    storage,
		tokens:     tokens,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start launches the periodic tasks
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Scheduler started",
		"collect_hour", s.cfg.CollectHour,
		"token_check_interval", s.cfg.TokenCheckInterval,
		"reconcile_window_days", s.cfg.ReconcileWindowDays)

	s.spawn(ctx, "daily_collection", s.nextDaily, s.collectYesterday)
	s.spawn(ctx, "token_check", s.nextTokenCheck, s.checkToken)
	s.spawn(ctx, "weekly_reconcile", s.nextWeekly, s.reconcile)
	s.spawn(ctx, "monthly_cleanup", s.nextMonthly, s.cleanup)
}

// Stop cancels all tasks and waits for running ones to finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) spawn(ctx context.Context, name string, next func(time.Time) time.Time, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			timer := time.NewTimer(time.Until(next(time.Now())))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			s.logger.Info("Running scheduled task", "task", name)
			fn(ctx)
		}
	}()
}

// nextDaily returns the next occurrence of the configured collection hour
func (s *Scheduler) nextDaily(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.CollectHour, 0, 0, 0, now.Location())
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

func (s *Scheduler) nextTokenCheck(now time.Time) time.Time {
	return now.Add(s.cfg.TokenCheckInterval)
}

// nextWeekly returns the next Sunday 2 AM
func (s *Scheduler) nextWeekly(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location())
	days := (int(time.Sunday) - int(now.Weekday()) + 7) % 7
	run = run.AddDate(0, 0, days)
	if !run.After(now) {
		run = run.AddDate(0, 0, 7)
	}
	return run
}

// nextMonthly returns the next 1st of the month at 3 AM
func (s *Scheduler) nextMonthly(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), 1, 3, 0, 0, 0, now.Location())
	if !run.After(now) {
		run = run.AddDate(0, 1, 0)
	}
	return run
}

// collectYesterday collects the previous day's finalized figures. Today
// is never requested; the provider finalizes with a day's lag.
func (s *Scheduler) collectYesterday(ctx context.Context) {
	start := time.Now()
	date := models.FormatDate(start.AddDate(0, 0, -1))

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.logger.Error("Daily collection aborted: no token", "error", err)
		s.logRun("daily_collection", database.LogStatusFailed, 0, start, err)
		return
	}

	results, err := s.reconciler.Backfill(ctx, token, []string{date})
	if err != nil {
		s.logger.Error("Failed to store collected record", "date", date, "error", err)
		s.logRun("daily_collection", database.LogStatusFailed, 0, start, err)
		return
	}

	if len(results) == 1 && results[0].Success {
		s.logger.Info("Collected yesterday's data", "date", date)
		s.logRun("daily_collection", database.LogStatusSuccess, 1, start, nil)
		return
	}

	s.logger.Warn("Yesterday's data not available yet", "date", date)
	s.logRun("daily_collection", database.LogStatusFailed, 0, start, nil)
}

// checkToken re-authenticates when the stored credential has expired
func (s *Scheduler) checkToken(ctx context.Context) {
	expired, err := s.storage.IsTokenExpired()
	if err != nil {
		s.logger.Error("Token check failed", "error", err)
		return
	}
	if !expired {
		s.logger.Debug("Token still valid")
		return
	}

	s.logger.Info("Token expired, refreshing")
	if _, err := s.tokens.Refresh(ctx); err != nil {
		s.logger.Error("Token refresh failed", "error", err)
	}
}

// reconcile backfills missing dates in the trailing window
func (s *Scheduler) reconcile(ctx context.Context) {
	start := time.Now()
	to := start.AddDate(0, 0, -1)
	from := start.AddDate(0, 0, -s.cfg.ReconcileWindowDays)

	gaps, err := s.reconciler.FindGaps(from, to)
	if err != nil {
		s.logger.Error("Gap detection failed", "error", err)
		s.logRun("weekly_reconcile", database.LogStatusFailed, 0, start, err)
		return
	}
	if len(gaps) == 0 {
		s.logger.Info("No missing dates found")
		s.logRun("weekly_reconcile", database.LogStatusSuccess, 0, start, nil)
		return
	}

	s.logger.Info("Found missing dates, backfilling", "count", len(gaps))

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.logger.Error("Reconciliation aborted: no token", "error", err)
		s.logRun("weekly_reconcile", database.LogStatusFailed, 0, start, err)
		return
	}

	results, err := s.reconciler.Backfill(ctx, token, gaps)
	if err != nil {
		s.logger.Error("Backfill aborted", "error", err)
		s.logRun("weekly_reconcile", database.LogStatusFailed, countSuccesses(results), start, err)
		return
	}

	stored := countSuccesses(results)
	status := database.LogStatusSuccess
	if stored < len(results) {
		status = database.LogStatusPartial
	}
	s.logger.Info("Reconciliation complete", "stored", stored, "attempted", len(results))
	s.logRun("weekly_reconcile", status, stored, start, nil)
}

// cleanup prunes old collection logs, or only reports what it would
// prune when retention is disabled
func (s *Scheduler) cleanup(ctx context.Context) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -s.cfg.RetentionDays)

	if !s.cfg.PruneLogs {
		count, err := s.storage.CountLogsBefore(cutoff)
		if err != nil {
			s.logger.Error("Retention check failed", "error", err)
			return
		}
		s.logger.Info("Monthly cleanup: retention disabled",
			"eligible_entries", count,
			"retention_days", s.cfg.RetentionDays)
		return
	}

	removed, err := s.storage.PruneLogsBefore(cutoff)
	if err != nil {
		s.logger.Error("Log pruning failed", "error", err)
		s.logRun("monthly_cleanup", database.LogStatusFailed, 0, start, err)
		return
	}

	s.logger.Info("Pruned old collection logs", "removed", removed)
	s.logRun("monthly_cleanup", database.LogStatusSuccess, int(removed), start, nil)
}

func (s *Scheduler) logRun(jobType, status string, records int, start time.Time, runErr error) {
	entry := &database.CollectionLog{
		JobType:          jobType,
		Status:           status,
		RecordsCollected: records,
		ExecutionTimeMs:  time.Since(start).Milliseconds(),
	}
	if runErr != nil {
		entry.ErrorDetails = runErr.Error()
	}
	if err := s.storage.InsertCollectionLog(entry); err != nil {
		s.logger.Error("Failed to write collection log", "job_type", jobType, "error", err)
	}
}

func countSuccesses(results []models.DateResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

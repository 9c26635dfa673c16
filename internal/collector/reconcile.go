package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmorita/denkiwatch/internal/database"
	"github.com/jmorita/denkiwatch/pkg/models"
)

// Repository is the storage surface the reconciliation engine needs
type Repository interface {
	ExistingDates(fromDate, toDate string) (map[string]bool, error)
	Upsert(rec *models.UsageRecord) (database.UpsertResult, error)
}

// DailyFetcher collects a single date's record
type DailyFetcher interface {
	Collect(ctx context.Context, token, date string) (*models.UsageRecord, error)
}

// Publisher pushes stored records to downstream consumers
type Publisher interface {
	Publish(rec *models.UsageRecord) error
}

// Engine detects missing dates in a trailing window and fills them
type Engine struct {
	repo      Repository
	fetcher   DailyFetcher
	publisher Publisher // optional
	logger    *slog.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(repo Repository, fetcher DailyFetcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:    repo,
		fetcher: fetcher,
		logger:  logger,
	}
}

// SetPublisher attaches a downstream publisher. Inserted and updated
// records are published; publish failures are logged, never fatal.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// FindGaps returns every date in [from, to] inclusive with no stored
// record, ascending
func (e *Engine) FindGaps(from, to time.Time) ([]string, error) {
	fromKey := models.FormatDate(from)
	toKey := models.FormatDate(to)

	existing, err := e.repo.ExistingDates(fromKey, toKey)
	if err != nil {
		return nil, err
	}

	var missing []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := models.FormatDate(d)
		if !existing[key] {
			missing = append(missing, key)
		}
	}

	return missing, nil
}

// Backfill collects and stores each date in order. One date failing never
// aborts the rest; unresolved dates stay gaps for the next pass. Storage
// errors do abort: they indicate a persistence defect, not a bad day.
func (e *Engine) Backfill(ctx context.Context, token string, dates []string) ([]models.DateResult, error) {
	results := make([]models.DateResult, 0, len(dates))

	for _, date := range dates {
		rec, err := e.fetcher.Collect(ctx, token, date)
		if err != nil {
			e.logger.Error("Failed to collect date", "date", date, "error", err)
			results = append(results, models.DateResult{Date: date, Success: false, Error: err.Error()})
			continue
		}
		if rec == nil {
			e.logger.Warn("No data available for date", "date", date)
			results = append(results, models.DateResult{Date: date, Success: false, Error: "data not available"})
			continue
		}

		res, err := e.repo.Upsert(rec)
		if err != nil {
			return results, err
		}
		if res == database.UpsertUnchanged {
			e.logger.Debug("No changes for date, skipping update", "date", date)
		} else {
			e.logger.Info("Backfilled date", "date", date, "kwh", rec.KwhUsed)
			if e.publisher != nil {
				if err := e.publisher.Publish(rec); err != nil {
					e.logger.Error("Failed to publish record", "date", date, "error", err)
				}
			}
		}

		results = append(results, models.DateResult{Date: date, Success: true})
	}

	return results, nil
}

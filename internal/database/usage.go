package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmorita/denkiwatch/pkg/models"
)

// UpsertResult describes what an upsert did to the stored row
type UpsertResult int

const (
	// UpsertInserted means no row existed and a new one was written
	UpsertInserted UpsertResult = iota
	// UpsertUpdated means a row existed and a monitored value changed
	UpsertUpdated
	// UpsertUnchanged means a row existed with identical values; nothing was written
	UpsertUnchanged
)

const timeLayout = time.RFC3339

// GetUsage retrieves the usage record for a specific date (YYYYMMDD),
// or nil if no record exists
func (db *DB) GetUsage(usageDate string) (*models.UsageRecord, error) {
	query := `
	SELECT id, usage_date, kwh_used, charge_yen, cumulative_kwh, cumulative_charge_yen,
	       billing_status, rate_category, last_updated, collected_at, raw_data
	FROM daily_usage
	WHERE usage_date = ?
	`

	row := db.conn.QueryRow(query, usageDate)
	rec, err := scanUsageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying usage record: %w", err)
	}
	return rec, nil
}

// GetUsageRange retrieves usage records between two dates inclusive,
// ordered by date ascending
func (db *DB) GetUsageRange(fromDate, toDate string) ([]models.UsageRecord, error) {
	query := `
	SELECT id, usage_date, kwh_used, charge_yen, cumulative_kwh, cumulative_charge_yen,
	       billing_status, rate_category, last_updated, collected_at, raw_data
	FROM daily_usage
	WHERE usage_date BETWEEN ? AND ?
	ORDER BY usage_date
	`

	rows, err := db.conn.Query(query, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("querying usage range: %w", err)
	}
	defer rows.Close()

	var results []models.UsageRecord
	for rows.Next() {
		rec, err := scanUsageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		results = append(results, *rec)
	}

	return results, rows.Err()
}

// ExistingDates returns the set of dates within [fromDate, toDate] that
// already have a stored record
func (db *DB) ExistingDates(fromDate, toDate string) (map[string]bool, error) {
	query := `SELECT usage_date FROM daily_usage WHERE usage_date BETWEEN ? AND ?`

	rows, err := db.conn.Query(query, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("querying existing dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning date: %w", err)
		}
		dates[d] = true
	}

	return dates, rows.Err()
}

// Upsert inserts or updates the record for its usage date. A record is
// only rewritten when one of the monitored billing values differs from
// what is stored; in that case every field is replaced, last_updated is
// set to now and collected_at keeps its original value. Identical values
// leave the row untouched, which makes re-collection idempotent.
func (db *DB) Upsert(rec *models.UsageRecord) (UpsertResult, error) {
	existing, err := db.GetUsage(rec.UsageDate)
	if err != nil {
		return UpsertUnchanged, err
	}

	if existing == nil {
		if err := db.insertUsage(rec); err != nil {
			return UpsertUnchanged, err
		}
		return UpsertInserted, nil
	}

	if existing.ValuesEqual(rec) {
		return UpsertUnchanged, nil
	}

	query := `
	UPDATE daily_usage SET
		kwh_used = ?, charge_yen = ?, cumulative_kwh = ?, cumulative_charge_yen = ?,
		billing_status = ?, rate_category = ?, last_updated = ?, raw_data = ?
	WHERE usage_date = ?
	`

	lastUpdated := time.Now().UTC().Format(timeLayout)
	_, err = db.conn.Exec(query,
		rec.KwhUsed, rec.ChargeYen, rec.CumulativeKwh, rec.CumulativeChargeYen,
		rec.BillingStatus, rec.RateCategory, lastUpdated, rec.RawData,
		rec.UsageDate,
	)
	if err != nil {
		return UpsertUnchanged, fmt.Errorf("updating usage record: %w", err)
	}

	return UpsertUpdated, nil
}

// MonthlyAggregate sums stored usage for a YYYYMM month
func (db *DB) MonthlyAggregate(yearMonth string) (*models.MonthlyAggregate, error) {
	fromDate := yearMonth + "01"
	toDate := yearMonth + "31"

	records, err := db.GetUsageRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}

	agg := &models.MonthlyAggregate{YearMonth: yearMonth}
	for _, rec := range records {
		agg.TotalKwh += rec.KwhUsed
		agg.TotalCharge += rec.ChargeYen
	}
	agg.Days = len(records)
	if agg.Days > 0 {
		agg.AverageKwh = agg.TotalKwh / float64(agg.Days)
	}

	return agg, nil
}

func (db *DB) insertUsage(rec *models.UsageRecord) error {
	query := `
	INSERT INTO daily_usage (
		usage_date, kwh_used, charge_yen, cumulative_kwh, cumulative_charge_yen,
		billing_status, rate_category, last_updated, collected_at, raw_data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		rec.UsageDate, rec.KwhUsed, rec.ChargeYen, rec.CumulativeKwh, rec.CumulativeChargeYen,
		rec.BillingStatus, rec.RateCategory,
		rec.LastUpdated.UTC().Format(timeLayout), rec.CollectedAt.UTC().Format(timeLayout),
		rec.RawData,
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for the shared scan path
type scanner interface {
	Scan(dest ...any) error
}

func scanUsageRow(s scanner) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	var billingStatus, rateCategory, rawData sql.NullString
	var lastUpdated, collectedAt string

	err := s.Scan(&rec.ID, &rec.UsageDate, &rec.KwhUsed, &rec.ChargeYen,
		&rec.CumulativeKwh, &rec.CumulativeChargeYen,
		&billingStatus, &rateCategory, &lastUpdated, &collectedAt, &rawData)
	if err != nil {
		return nil, err
	}

	rec.BillingStatus = billingStatus.String
	rec.RateCategory = rateCategory.String
	rec.RawData = rawData.String

	rec.LastUpdated, err = time.Parse(timeLayout, lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}
	rec.CollectedAt, err = time.Parse(timeLayout, collectedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing collected_at: %w", err)
	}

	return &rec, nil
}

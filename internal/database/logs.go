package database

import (
	"fmt"
	"time"
)

// CollectionLog records one run of a collection job
type CollectionLog struct {
	ID               int       `json:"id"`
	JobType          string    `json:"job_type"`
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	RecordsCollected int       `json:"records_collected"`
	ExecutionTimeMs  int64     `json:"execution_time_ms"`
	ErrorDetails     string    `json:"error_details,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Job status values for collection logs
const (
	LogStatusSuccess = "success"
	LogStatusPartial = "partial"
	LogStatusFailed  = "failed"
)

// InsertCollectionLog writes a job run entry
func (db *DB) InsertCollectionLog(entry *CollectionLog) error {
	query := `
	INSERT INTO collection_logs (job_type, status, message, records_collected, execution_time_ms, error_details, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		entry.JobType, entry.Status, entry.Message,
		entry.RecordsCollected, entry.ExecutionTimeMs, entry.ErrorDetails,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting collection log: %w", err)
	}

	return nil
}

// CountLogsBefore returns how many log entries are older than the cutoff
func (db *DB) CountLogsBefore(cutoff time.Time) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM collection_logs WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting old logs: %w", err)
	}
	return count, nil
}

// PruneLogsBefore deletes log entries older than the cutoff and returns
// how many rows were removed
func (db *DB) PruneLogsBefore(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec(
		`DELETE FROM collection_logs WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning collection logs: %w", err)
	}
	return res.RowsAffected()
}

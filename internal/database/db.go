package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		usage_date TEXT NOT NULL UNIQUE,
		kwh_used REAL NOT NULL,
		charge_yen INTEGER NOT NULL,
		cumulative_kwh REAL NOT NULL,
		cumulative_charge_yen INTEGER NOT NULL,
		billing_status TEXT,
		rate_category TEXT,
		last_updated TEXT NOT NULL,
		collected_at TEXT NOT NULL,
		raw_data TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_daily_usage_date ON daily_usage(usage_date);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bearer_token TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS collection_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		records_collected INTEGER DEFAULT 0,
		execution_time_ms INTEGER,
		error_details TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_collection_logs_created ON collection_logs(created_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

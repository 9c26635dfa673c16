package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmorita/denkiwatch/pkg/models"
)

// StoreToken atomically replaces any stored credential with a new one.
// The store never holds more than one token that could be handed out.
func (db *DB) StoreToken(token string, expiresAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning token transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM auth_sessions`); err != nil {
		return fmt.Errorf("clearing previous tokens: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO auth_sessions (bearer_token, expires_at, created_at) VALUES (?, ?, ?)`,
		token, expiresAt.UTC().Format(timeLayout), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	return tx.Commit()
}

// GetValidToken returns the most recently created credential whose expiry
// is still in the future, or nil if none exists
func (db *DB) GetValidToken() (*models.Credential, error) {
	query := `
	SELECT bearer_token, expires_at, created_at
	FROM auth_sessions
	WHERE expires_at > ?
	ORDER BY created_at DESC
	LIMIT 1
	`

	now := time.Now().UTC().Format(timeLayout)
	row := db.conn.QueryRow(query, now)

	var cred models.Credential
	var expiresAt, createdAt string
	err := row.Scan(&cred.Token, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}

	cred.ExpiresAt, err = time.Parse(timeLayout, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	cred.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &cred, nil
}

// IsTokenExpired reports whether no valid credential is stored
func (db *DB) IsTokenExpired() (bool, error) {
	cred, err := db.GetValidToken()
	if err != nil {
		return false, err
	}
	return cred == nil, nil
}

// ClearTokens removes all stored credentials
func (db *DB) ClearTokens() error {
	if _, err := db.conn.Exec(`DELETE FROM auth_sessions`); err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}
	return nil
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DB holds web sessions in a sqlite database. Users and expenses live in the
// CSV stores; sessions only carry the user id.
type DB struct {
	conn *sql.DB
}

// NewDB migrates and opens the session database at path.
func NewDB(path string) (*DB, error) {
	if err := RunMigrations(path); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(token string, userID int64, expiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt.UTC(), now,
	)
	return err
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	UserID       int64
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ValidateSession checks if a session token is valid and returns its user id.
func (db *DB) ValidateSession(token string) (int64, error) {
	info, err := db.ValidateSessionWithInfo(token)
	if err != nil {
		return 0, err
	}
	return info.UserID, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
// Unknown and expired tokens yield ErrNotFound.
func (db *DB) ValidateSessionWithInfo(token string) (*SessionInfo, error) {
	row := db.conn.QueryRow(
		"SELECT user_id, last_activity, expires_at FROM sessions WHERE token = ? AND expires_at > ?",
		token, time.Now().UTC(),
	)

	var info SessionInfo
	if err := row.Scan(&info.UserID, &info.LastActivity, &info.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}
	return &info, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(token string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions and returns how many were removed.
func (db *DB) CleanExpiredSessions() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

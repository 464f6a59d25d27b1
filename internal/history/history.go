// Package history records daemon lifecycle events in SQLite: configuration
// replacements, device grabs, triggered actions and shutdowns. Key events
// are never recorded.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the lifecycle audit trail.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns    INTEGER NOT NULL,
    kind            TEXT NOT NULL,
    detail          TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, timestamp_ns);
`

// Event kinds.
const (
	KindConfigReceived  = "config_received"
	KindDevicesGrabbed  = "devices_grabbed"
	KindDevicesReleased = "devices_released"
	KindActionTriggered = "action_triggered"
	KindSessionLocked   = "session_locked"
	KindSessionUnlocked = "session_unlocked"
	KindExitSequence    = "exit_sequence"
)

// Event is one recorded lifecycle event.
type Event struct {
	ID        int64
	Timestamp time.Time
	Kind      string
	Detail    string
}

// Store is the SQLite-backed audit trail.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one event.
func (s *Store) Record(kind, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO events (timestamp_ns, kind, detail) VALUES (?, ?, ?)`,
		time.Now().UnixNano(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *Store) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, timestamp_ns, kind, detail FROM events ORDER BY timestamp_ns DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ns int64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &ns, &e.Kind, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ns)
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune removes events older than the cutoff.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	res, err := s.db.Exec(`DELETE FROM events WHERE timestamp_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

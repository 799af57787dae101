// Package spool persists envelopes that the transport had to reject at
// capacity, so a host application can replay them once the queue has
// room again. The spool is strictly opt-in; without it, a rejected
// envelope is simply lost, which matches the best-effort delivery
// contract.
package spool

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds spool configuration.
type Config struct {
	// Path is the SQLite database file path.
	Path string
	// MaxEntries caps how many envelopes the spool retains; when full,
	// the oldest entry is evicted first. Zero means the default.
	MaxEntries int
}

// DefaultMaxEntries bounds the spool when no cap is configured.
const DefaultMaxEntries = 1000

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("spool path is required")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("MaxEntries must not be negative, got %d", c.MaxEntries)
	}
	return nil
}

// Spool is a SQLite-backed overflow buffer of serialized envelopes.
type Spool struct {
	db         *sql.DB
	maxEntries int
}

// Open opens or creates the spool database and migrates its schema.
func Open(config Config) (*Spool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spool config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping spool database: %w", err)
	}

	maxEntries := config.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries
	}

	s := &Spool{db: db, maxEntries: maxEntries}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate spool database: %w", err)
	}
	return s, nil
}

func (s *Spool) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS envelopes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			body BLOB NOT NULL
		)
	`)
	return err
}

// Add stores one serialized envelope, evicting the oldest entries if
// the cap would be exceeded.
func (s *Spool) Add(body []byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin spool transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO envelopes (created_at, body) VALUES (?, ?)",
		time.Now().Unix(), body,
	); err != nil {
		return fmt.Errorf("failed to insert spooled envelope: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM envelopes WHERE id NOT IN (
			SELECT id FROM envelopes ORDER BY id DESC LIMIT ?
		)
	`, s.maxEntries); err != nil {
		return fmt.Errorf("failed to trim spool: %w", err)
	}

	return tx.Commit()
}

// Drain hands up to max spooled envelopes to fn in insertion order.
// Entries fn accepts (returns true for) are deleted; the first rejected
// entry stops the drain and stays spooled. Returns the number consumed.
func (s *Spool) Drain(max int, fn func(body []byte) bool) (int, error) {
	rows, err := s.db.Query(
		"SELECT id, body FROM envelopes ORDER BY id ASC LIMIT ?", max,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query spool: %w", err)
	}
	defer rows.Close()

	type entry struct {
		id   int64
		body []byte
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.body); err != nil {
			return 0, fmt.Errorf("failed to scan spooled envelope: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read spool: %w", err)
	}

	consumed := 0
	for _, e := range entries {
		if !fn(e.body) {
			break
		}
		if _, err := s.db.Exec("DELETE FROM envelopes WHERE id = ?", e.id); err != nil {
			return consumed, fmt.Errorf("failed to delete spooled envelope: %w", err)
		}
		consumed++
	}
	return consumed, nil
}

// Len returns the number of spooled envelopes.
func (s *Spool) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM envelopes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count spooled envelopes: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Spool) Close() error {
	return s.db.Close()
}

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oktsec/wafwatch/internal/waf"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY,
	action TEXT NOT NULL,
	classification TEXT NOT NULL,
	probability REAL NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	query TEXT NOT NULL,
	client_ip TEXT NOT NULL,
	esp_ip TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	total INTEGER NOT NULL,
	blocked INTEGER NOT NULL,
	allowed INTEGER NOT NULL,
	last_updated TEXT
);

INSERT OR IGNORE INTO counters (id, total, blocked, allowed) VALUES (1, 0, 0, 0);
`

// SQLiteStore persists events in a local SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, retention int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event db: %w", err)
	}
	// Record reads then writes the counters row inside one transaction.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SQLiteStore{db: db, retention: retention}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, e waf.Event) (rec waf.Event, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var c counters
	if err := tx.QueryRowContext(ctx, "SELECT total, blocked, allowed FROM counters WHERE id = 1").
		Scan(&c.total, &c.blocked, &c.allowed); err != nil {
		return e, fmt.Errorf("reading counters: %w", err)
	}
	e.ID = int64(c.total + 1)
	c.count(e.Action, e.Timestamp.Time)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, action, classification, probability, method, path, query, client_ip, esp_ip, user_agent, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.Classification, e.Probability, e.Method, e.Path, e.Query,
		e.ClientIP, e.ESPIP, e.UserAgent, formatTime(e.Timestamp.Time),
	); err != nil {
		return e, fmt.Errorf("inserting event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE counters SET total = ?, blocked = ?, allowed = ?, last_updated = ? WHERE id = 1",
		c.total, c.blocked, c.allowed, formatTime(c.lastUpdated),
	); err != nil {
		return e, fmt.Errorf("updating counters: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id <= ?", e.ID-int64(s.retention)); err != nil {
		return e, fmt.Errorf("trimming events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return e, fmt.Errorf("commit: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Events(ctx context.Context, limit int) ([]waf.Event, int, error) {
	var retained int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&retained); err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, classification, probability, method, path, query, client_ip, esp_ip, user_agent, timestamp
		 FROM events ORDER BY id DESC LIMIT ?`, max(limit, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []waf.Event{}
	for rows.Next() {
		var (
			e      waf.Event
			action string
			ts     string
		)
		if err := rows.Scan(&e.ID, &action, &e.Classification, &e.Probability, &e.Method, &e.Path,
			&e.Query, &e.ClientIP, &e.ESPIP, &e.UserAgent, &ts); err != nil {
			return nil, 0, fmt.Errorf("scanning event: %w", err)
		}
		e.Action = waf.Action(action)
		if e.Timestamp, err = waf.ParseTimestamp(ts); err != nil {
			return nil, 0, fmt.Errorf("event %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, retained, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (waf.StatsSnapshot, error) {
	var (
		c    counters
		last sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, "SELECT total, blocked, allowed, last_updated FROM counters WHERE id = 1").
		Scan(&c.total, &c.blocked, &c.allowed, &last); err != nil {
		return waf.StatsSnapshot{}, fmt.Errorf("reading counters: %w", err)
	}
	if last.Valid && last.String != "" {
		ts, err := waf.ParseTimestamp(last.String)
		if err != nil {
			return waf.StatsSnapshot{}, fmt.Errorf("last_updated: %w", err)
		}
		c.lastUpdated = ts.Time
	}
	return c.snapshot(), nil
}

func (s *SQLiteStore) Clear(ctx context.Context, at time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE counters SET total = 0, blocked = 0, allowed = 0, last_updated = ? WHERE id = 1",
		formatTime(at),
	); err != nil {
		return fmt.Errorf("resetting counters: %w", err)
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

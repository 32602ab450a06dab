package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oktsec/wafwatch/internal/waf"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS waf_events (
	id BIGINT PRIMARY KEY,
	action TEXT NOT NULL,
	classification TEXT NOT NULL,
	probability DOUBLE PRECISION NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	query TEXT NOT NULL,
	client_ip TEXT NOT NULL,
	esp_ip TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS waf_counters (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	total BIGINT NOT NULL,
	blocked BIGINT NOT NULL,
	allowed BIGINT NOT NULL,
	last_updated TIMESTAMPTZ
);

INSERT INTO waf_counters (id, total, blocked, allowed) VALUES (1, 0, 0, 0)
ON CONFLICT (id) DO NOTHING;
`

// PostgresStore persists events in PostgreSQL through the pgx driver.
type PostgresStore struct {
	db        *sql.DB
	retention int
}

// NewPostgresStore connects with connString and creates the tables if
// needed.
func NewPostgresStore(ctx context.Context, connString string, retention int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PostgresStore{db: db, retention: retention}, nil
}

func (p *PostgresStore) Record(ctx context.Context, e waf.Event) (rec waf.Event, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return e, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var c counters
	if err := tx.QueryRowContext(ctx,
		"SELECT total, blocked, allowed FROM waf_counters WHERE id = 1 FOR UPDATE").
		Scan(&c.total, &c.blocked, &c.allowed); err != nil {
		return e, fmt.Errorf("reading counters: %w", err)
	}
	e.ID = int64(c.total + 1)
	c.count(e.Action, e.Timestamp.Time)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO waf_events (id, action, classification, probability, method, path, query, client_ip, esp_ip, user_agent, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, string(e.Action), e.Classification, e.Probability, e.Method, e.Path, e.Query,
		e.ClientIP, e.ESPIP, e.UserAgent, e.Timestamp.UTC(),
	); err != nil {
		return e, fmt.Errorf("inserting event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE waf_counters SET total = $1, blocked = $2, allowed = $3, last_updated = $4 WHERE id = 1",
		c.total, c.blocked, c.allowed, c.lastUpdated.UTC(),
	); err != nil {
		return e, fmt.Errorf("updating counters: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM waf_events WHERE id <= $1", e.ID-int64(p.retention)); err != nil {
		return e, fmt.Errorf("trimming events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return e, fmt.Errorf("commit: %w", err)
	}
	return e, nil
}

func (p *PostgresStore) Events(ctx context.Context, limit int) ([]waf.Event, int, error) {
	var retained int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM waf_events").Scan(&retained); err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, action, classification, probability, method, path, query, client_ip, esp_ip, user_agent, ts
		 FROM waf_events ORDER BY id DESC LIMIT $1`, max(limit, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []waf.Event{}
	for rows.Next() {
		var (
			e      waf.Event
			action string
			ts     time.Time
		)
		if err := rows.Scan(&e.ID, &action, &e.Classification, &e.Probability, &e.Method, &e.Path,
			&e.Query, &e.ClientIP, &e.ESPIP, &e.UserAgent, &ts); err != nil {
			return nil, 0, fmt.Errorf("scanning event: %w", err)
		}
		e.Action = waf.Action(action)
		e.Timestamp = waf.NewTimestamp(ts)
		events = append(events, e)
	}
	return events, retained, rows.Err()
}

func (p *PostgresStore) Stats(ctx context.Context) (waf.StatsSnapshot, error) {
	var (
		c    counters
		last sql.NullTime
	)
	if err := p.db.QueryRowContext(ctx,
		"SELECT total, blocked, allowed, last_updated FROM waf_counters WHERE id = 1").
		Scan(&c.total, &c.blocked, &c.allowed, &last); err != nil {
		return waf.StatsSnapshot{}, fmt.Errorf("reading counters: %w", err)
	}
	if last.Valid {
		c.lastUpdated = last.Time
	}
	return c.snapshot(), nil
}

func (p *PostgresStore) Clear(ctx context.Context, at time.Time) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM waf_events"); err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE waf_counters SET total = 0, blocked = 0, allowed = 0, last_updated = $1 WHERE id = 1",
		at.UTC(),
	); err != nil {
		return fmt.Errorf("resetting counters: %w", err)
	}
	return tx.Commit()
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

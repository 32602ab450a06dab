package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/oktsec/wafwatch/internal/waf"
)

// DefaultRetention is how many events a store keeps before dropping the
// oldest.
const DefaultRetention = 1000

// Store persists reported events and the running counters. Counters are
// independent of retention: they keep counting after old events are
// dropped and only Clear resets them.
type Store interface {
	// Record assigns the next id (total_requests + 1), stores e as the
	// newest event and updates the counters. e.Timestamp becomes
	// last_updated.
	Record(ctx context.Context, e waf.Event) (waf.Event, error)
	// Events returns up to limit events, newest first, and the number of
	// events currently retained.
	Events(ctx context.Context, limit int) ([]waf.Event, int, error)
	Stats(ctx context.Context) (waf.StatsSnapshot, error)
	// Clear drops every event and zeroes the counters; last_updated is set
	// to at.
	Clear(ctx context.Context, at time.Time) error
	Close() error
}

// counters is the mutable part of a StatsSnapshot shared by the store
// implementations.
type counters struct {
	total, blocked, allowed int
	lastUpdated             time.Time
}

// count applies one recorded action. Actions other than BLOCKED and
// ALLOWED only move the total.
func (c *counters) count(a waf.Action, at time.Time) {
	c.total++
	switch a {
	case waf.ActionBlocked:
		c.blocked++
	case waf.ActionAllowed:
		c.allowed++
	}
	c.lastUpdated = at
}

func (c counters) snapshot() waf.StatsSnapshot {
	s := waf.StatsSnapshot{
		TotalRequests:   c.total,
		BlockedRequests: c.blocked,
		AllowedRequests: c.allowed,
	}
	if c.total > 0 {
		s.BlockRate = float64(c.blocked) / float64(c.total) * 100
	}
	if !c.lastUpdated.IsZero() {
		ts := waf.NewTimestamp(c.lastUpdated)
		s.LastUpdated = &ts
	}
	return s
}

// Open builds the store named by kind.
func Open(ctx context.Context, opts StoreOptions) (Store, error) {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	switch opts.Kind {
	case "", "memory":
		return NewMemoryStore(opts.Retention), nil
	case "sqlite":
		return NewSQLiteStore(opts.SQLitePath, opts.Retention)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPrefix, opts.Retention)
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresURL, opts.Retention)
	default:
		return nil, fmt.Errorf("unknown store %q", opts.Kind)
	}
}

// StoreOptions selects and configures a store.
type StoreOptions struct {
	Kind        string
	Retention   int
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
	PostgresURL string
}

package backend

import (
	"context"
	"sync"
	"time"

	"github.com/oktsec/wafwatch/internal/waf"
)

// MemoryStore keeps events in a bounded in-process ring, newest first.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []waf.Event
	counters  counters
	retention int
}

// NewMemoryStore creates an empty store keeping at most retention events.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{retention: retention}
}

func (m *MemoryStore) Record(_ context.Context, e waf.Event) (waf.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = int64(m.counters.total + 1)
	m.counters.count(e.Action, e.Timestamp.Time)

	m.events = append(m.events, waf.Event{})
	copy(m.events[1:], m.events)
	m.events[0] = e
	if len(m.events) > m.retention {
		m.events = m.events[:m.retention]
	}
	return e, nil
}

func (m *MemoryStore) Events(_ context.Context, limit int) ([]waf.Event, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(limit, len(m.events))
	out := make([]waf.Event, max(n, 0))
	copy(out, m.events)
	return out, len(m.events), nil
}

func (m *MemoryStore) Stats(context.Context) (waf.StatsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters.snapshot(), nil
}

func (m *MemoryStore) Clear(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.counters = counters{lastUpdated: at}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

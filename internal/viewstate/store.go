// Package viewstate holds the client's last-known copy of backend state.
package viewstate

import (
	"sync"
	"time"

	"github.com/oktsec/wafwatch/internal/waf"
)

// Resource names one independently fetched slice of the store.
type Resource string

const (
	ResourceStats    Resource = "stats"
	ResourceEvents   Resource = "events"
	// ResourceControls is published when presentation state outside the
	// store changes, such as the auto-refresh flag.
	ResourceControls Resource = "controls"
)

// Health tracks fetch outcomes for one resource. It never influences the
// stored values; presentations may use it for an optional stale marker.
type Health struct {
	LastSuccess         time.Time
	LastFailure         time.Time
	ConsecutiveFailures int
}

// Failing reports whether the most recent attempt failed.
func (h Health) Failing() bool {
	return h.ConsecutiveFailures > 0
}

// Snapshot is an immutable copy of the store.
type Snapshot struct {
	Stats       waf.StatsSnapshot
	Events      []waf.Event
	StatsSeq    uint64
	EventsSeq   uint64
	StatsHealth Health
	EventHealth Health
}

// Stale reports whether the latest attempt for either resource failed.
func (s Snapshot) Stale() bool {
	return s.StatsHealth.Failing() || s.EventHealth.Failing()
}

// Store holds the current StatsSnapshot and EventFeed. Each slice is
// replaced wholesale and only by a response whose cycle sequence is not
// older than the one already applied.
type Store struct {
	mu        sync.RWMutex
	stats     waf.StatsSnapshot
	events    []waf.Event
	statsSeq  uint64
	eventsSeq uint64
	health    map[Resource]Health
	now       func() time.Time

	Hub *Hub
}

// New creates an empty store.
func New() *Store {
	return &Store{
		events: []waf.Event{},
		health: make(map[Resource]Health),
		now:    time.Now,
		Hub:    NewHub(),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]waf.Event, len(s.events))
	copy(events, s.events)
	return Snapshot{
		Stats:       s.stats,
		Events:      events,
		StatsSeq:    s.statsSeq,
		EventsSeq:   s.eventsSeq,
		StatsHealth: s.health[ResourceStats],
		EventHealth: s.health[ResourceEvents],
	}
}

// ApplyStats replaces the stats snapshot. It returns false, leaving the
// store untouched, when seq is older than the applied stats sequence.
func (s *Store) ApplyStats(seq uint64, stats waf.StatsSnapshot) bool {
	s.mu.Lock()
	if seq < s.statsSeq {
		s.mu.Unlock()
		return false
	}
	s.statsSeq = seq
	s.stats = stats
	s.markSuccess(ResourceStats)
	s.mu.Unlock()

	s.Hub.Publish(Change{Resource: ResourceStats, Seq: seq})
	return true
}

// ApplyEvents replaces the event feed. Same ordering rule as ApplyStats.
func (s *Store) ApplyEvents(seq uint64, events []waf.Event) bool {
	feed := make([]waf.Event, len(events))
	copy(feed, events)

	s.mu.Lock()
	if seq < s.eventsSeq {
		s.mu.Unlock()
		return false
	}
	s.eventsSeq = seq
	s.events = feed
	s.markSuccess(ResourceEvents)
	s.mu.Unlock()

	s.Hub.Publish(Change{Resource: ResourceEvents, Seq: seq})
	return true
}

// RecordFailure notes a failed fetch. Stored values are kept as they are.
func (s *Store) RecordFailure(r Resource) {
	s.mu.Lock()
	h := s.health[r]
	h.ConsecutiveFailures++
	h.LastFailure = s.now()
	s.health[r] = h
	s.mu.Unlock()

	s.Hub.Publish(Change{Resource: r, Failed: true})
}

func (s *Store) markSuccess(r Resource) {
	h := s.health[r]
	h.ConsecutiveFailures = 0
	h.LastSuccess = s.now()
	s.health[r] = h
}

package poller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu          sync.Mutex
	stats       waf.StatsSnapshot
	events      []waf.Event
	statsErr    error
	eventsErr   error
	clearErr    error
	statsCalls  int
	eventsCalls int
	clearCalls  int
	limits      []int
	log         []string

	// statsHook runs before Stats returns; n is the 1-based call number.
	statsHook func(n int) waf.StatsSnapshot
}

func (f *fakeBackend) Stats(ctx context.Context) (*waf.StatsSnapshot, error) {
	f.mu.Lock()
	f.statsCalls++
	n := f.statsCalls
	f.log = append(f.log, "stats")
	hook, stats, err := f.statsHook, f.stats, f.statsErr
	f.mu.Unlock()

	if hook != nil {
		stats = hook(n)
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (f *fakeBackend) Events(ctx context.Context, limit int) ([]waf.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsCalls++
	f.limits = append(f.limits, limit)
	f.log = append(f.log, "events")
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	out := make([]waf.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeBackend) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.log = append(f.log, "clear")
	if f.clearErr != nil {
		return f.clearErr
	}
	f.stats = waf.StatsSnapshot{}
	f.events = nil
	return nil
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) counts() (stats, events, clears int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls, f.eventsCalls, f.clearCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestController(t *testing.T, b Backend, opts Options) *Controller {
	t.Helper()
	opts.Logger = testLogger()
	c := New(b, viewstate.New(), opts)
	t.Cleanup(c.Close)
	return c
}

func sampleStats() waf.StatsSnapshot {
	ts := waf.NewTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return waf.StatsSnapshot{TotalRequests: 10, BlockedRequests: 3, AllowedRequests: 7, BlockRate: 30.0, LastUpdated: &ts}
}

func sampleEvents() []waf.Event {
	return []waf.Event{
		{ID: 2, Action: waf.ActionBlocked, Classification: "malicious", Probability: 0.9763},
		{ID: 1, Action: waf.ActionAllowed, Classification: "benign", Probability: 0.01},
	}
}

func TestNew_Defaults(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, Options{})
	assert.Equal(t, DefaultInterval, c.Interval())
	assert.False(t, c.AutoRefresh())
	assert.Equal(t, DefaultEventLimit, c.limit)
}

func TestStart_FetchesImmediatelyWithoutTimer(t *testing.T) {
	b := &fakeBackend{stats: sampleStats(), events: sampleEvents()}
	c := newTestController(t, b, Options{Interval: time.Hour})

	c.Start()

	assert.Eventually(t, func() bool {
		s, e, _ := b.counts()
		return s == 1 && e == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return c.Store().Snapshot().Stats.TotalRequests == 10
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), c.loops.Load())
}

func TestStart_WithAutoRefreshPolls(t *testing.T) {
	b := &fakeBackend{stats: sampleStats()}
	c := newTestController(t, b, Options{Interval: 10 * time.Millisecond, AutoRefresh: true})

	c.Start()

	assert.Eventually(t, func() bool {
		s, _, _ := b.counts()
		return s >= 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), c.loops.Load())
}

func TestEventsFetch_UsesLimit(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{EventLimit: 50})

	c.RefreshNow(context.Background())

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.limits, 1)
	assert.Equal(t, 50, b.limits[0])
}

func TestRefreshNow_Idempotent(t *testing.T) {
	b := &fakeBackend{stats: sampleStats(), events: sampleEvents()}
	c := newTestController(t, b, Options{})

	c.RefreshNow(context.Background())
	first := c.Store().Snapshot()

	for range 5 {
		c.RefreshNow(context.Background())
	}
	last := c.Store().Snapshot()

	assert.Equal(t, first.Stats, last.Stats)
	assert.Equal(t, first.Events, last.Events)
}

func TestRefreshNow_DoesNotTouchTimer(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{Interval: time.Hour})

	c.RefreshNow(context.Background())
	assert.False(t, c.AutoRefresh())
	assert.Equal(t, int32(0), c.loops.Load())

	c.SetAutoRefresh(true)
	c.RefreshNow(context.Background())
	assert.True(t, c.AutoRefresh())
	assert.Equal(t, int32(1), c.loops.Load())
}

func TestSetAutoRefresh_NoTimerLeak(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{Interval: time.Hour})

	for range 25 {
		c.SetAutoRefresh(true)
		c.SetAutoRefresh(false)
		c.SetAutoRefresh(true)
	}
	assert.Equal(t, int32(1), c.loops.Load())

	// Re-enabling while enabled must not stack either.
	c.SetAutoRefresh(true)
	c.SetAutoRefresh(true)
	assert.Equal(t, int32(1), c.loops.Load())

	c.Close()
	assert.Equal(t, int32(0), c.loops.Load())
}

func TestSetAutoRefresh_EnableFetchesImmediately(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{Interval: time.Hour})

	c.SetAutoRefresh(true)

	assert.Eventually(t, func() bool {
		s, e, _ := b.counts()
		return s == 1 && e == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSetAutoRefresh_DisableStopsFetching(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{Interval: 10 * time.Millisecond})

	c.SetAutoRefresh(true)
	assert.Eventually(t, func() bool {
		s, _, _ := b.counts()
		return s >= 3
	}, 2*time.Second, 5*time.Millisecond)

	c.SetAutoRefresh(false)
	c.inflight.Wait()
	before, _, _ := b.counts()

	time.Sleep(60 * time.Millisecond)
	after, _, _ := b.counts()
	assert.Equal(t, before, after, "no fetches after auto-refresh is disabled")
	assert.Equal(t, int32(0), c.loops.Load())
}

func TestSetInterval_RearmsSingleTimer(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{Interval: time.Hour})

	c.SetAutoRefresh(true)
	c.SetInterval(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, c.Interval())
	assert.Equal(t, int32(1), c.loops.Load())

	assert.Eventually(t, func() bool {
		s, _, _ := b.counts()
		return s >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSetInterval_IgnoresNonPositive(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, Options{Interval: time.Second})
	c.SetInterval(0)
	c.SetInterval(-time.Second)
	assert.Equal(t, time.Second, c.Interval())
}

func TestToggleAutoRefresh(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, Options{Interval: time.Hour})
	assert.True(t, c.ToggleAutoRefresh())
	assert.False(t, c.ToggleAutoRefresh())
	assert.Equal(t, int32(0), c.loops.Load())
}

func TestPartialFailure_EventsFailStatsUpdate(t *testing.T) {
	b := &fakeBackend{stats: sampleStats(), events: sampleEvents()}
	c := newTestController(t, b, Options{})
	c.RefreshNow(context.Background())

	b.set(func(f *fakeBackend) {
		f.stats.TotalRequests = 11
		f.stats.AllowedRequests = 8
		f.events = []waf.Event{{ID: 3}}
		f.eventsErr = errBackendDown
	})
	c.RefreshNow(context.Background())

	snap := c.Store().Snapshot()
	assert.Equal(t, 11, snap.Stats.TotalRequests)
	assert.Equal(t, sampleEvents(), snap.Events)
	assert.True(t, snap.EventHealth.Failing())
	assert.False(t, snap.StatsHealth.Failing())
}

func TestPartialFailure_StatsFailEventsUpdate(t *testing.T) {
	b := &fakeBackend{stats: sampleStats(), events: sampleEvents()}
	c := newTestController(t, b, Options{})
	c.RefreshNow(context.Background())

	b.set(func(f *fakeBackend) {
		f.stats.TotalRequests = 99
		f.statsErr = errBackendDown
		f.events = []waf.Event{{ID: 3, Action: waf.ActionAllowed}}
	})
	c.RefreshNow(context.Background())

	snap := c.Store().Snapshot()
	assert.Equal(t, 10, snap.Stats.TotalRequests)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, int64(3), snap.Events[0].ID)
}

func TestFetchFailure_KeepsInitialEmptyState(t *testing.T) {
	b := &fakeBackend{statsErr: errBackendDown, eventsErr: errBackendDown}
	c := newTestController(t, b, Options{})

	for range 3 {
		c.RefreshNow(context.Background())
	}

	snap := c.Store().Snapshot()
	assert.Nil(t, snap.Stats.LastUpdated)
	assert.Empty(t, snap.Events)
	assert.Equal(t, 3, snap.StatsHealth.ConsecutiveFailures)
}

func TestStragglerResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	b := &fakeBackend{}
	b.statsHook = func(n int) waf.StatsSnapshot {
		if n == 1 {
			<-release
		}
		return waf.StatsSnapshot{TotalRequests: n}
	}
	c := newTestController(t, b, Options{})

	slow := make(chan struct{})
	go func() {
		defer close(slow)
		c.RefreshNow(context.Background()) // cycle 1, stats blocked
	}()
	assert.Eventually(t, func() bool {
		s, _, _ := b.counts()
		return s == 1
	}, time.Second, time.Millisecond)

	c.RefreshNow(context.Background()) // cycle 2 completes first
	assert.Equal(t, 2, c.Store().Snapshot().Stats.TotalRequests)

	close(release)
	<-slow
	assert.Equal(t, 2, c.Store().Snapshot().Stats.TotalRequests, "older response must not overwrite newer data")
}

func TestClearAll_Declined(t *testing.T) {
	b := &fakeBackend{stats: sampleStats()}
	c := newTestController(t, b, Options{})

	var prompt string
	err := c.ClearAll(context.Background(), ConfirmFunc(func(_ context.Context, p string) bool {
		prompt = p
		return false
	}))

	require.NoError(t, err)
	assert.Equal(t, ClearPrompt, prompt)
	s, e, clears := b.counts()
	assert.Zero(t, clears)
	assert.Zero(t, s)
	assert.Zero(t, e)
}

func TestClearAll_NilConfirmerDeclines(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(t, b, Options{})
	require.NoError(t, c.ClearAll(context.Background(), nil))
	_, _, clears := b.counts()
	assert.Zero(t, clears)
}

func TestClearAll_ResyncsAfterClear(t *testing.T) {
	b := &fakeBackend{stats: sampleStats(), events: sampleEvents()}
	c := newTestController(t, b, Options{})
	c.RefreshNow(context.Background())

	require.NoError(t, c.ClearAll(context.Background(), Confirmed))

	b.mu.Lock()
	log := append([]string(nil), b.log...)
	b.mu.Unlock()
	require.Len(t, log, 5)
	assert.Equal(t, "clear", log[2])
	assert.ElementsMatch(t, []string{"stats", "events"}, log[3:])

	snap := c.Store().Snapshot()
	assert.Equal(t, 0, snap.Stats.TotalRequests)
	assert.Empty(t, snap.Events)
}

func TestClearAll_ResyncsEvenWhenClearFails(t *testing.T) {
	b := &fakeBackend{stats: sampleStats(), events: sampleEvents(), clearErr: errBackendDown}
	c := newTestController(t, b, Options{})

	err := c.ClearAll(context.Background(), Confirmed)
	require.ErrorIs(t, err, errBackendDown)

	s, e, clears := b.counts()
	assert.Equal(t, 1, clears)
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, e)

	// The backend still has its data, so the store mirrors it.
	assert.Equal(t, 10, c.Store().Snapshot().Stats.TotalRequests)
}

func TestClose_Idempotent(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, Options{AutoRefresh: true, Interval: time.Hour})
	c.Start()
	c.Close()
	c.Close()

	c.SetAutoRefresh(true)
	c.Start()
	assert.Equal(t, int32(0), c.loops.Load())
}

func TestMetrics_CountsResults(t *testing.T) {
	b := &fakeBackend{eventsErr: errBackendDown}
	c := newTestController(t, b, Options{})
	c.RefreshNow(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.Fetches.WithLabelValues("stats", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.Fetches.WithLabelValues("events", "error")))
}

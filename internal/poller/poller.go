// Package poller keeps a viewstate.Store eventually consistent with a
// telemetry backend.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultInterval is the auto-refresh period.
	DefaultInterval = 2 * time.Second
	// DefaultEventLimit is the feed size requested from the backend.
	DefaultEventLimit = 50
	// ClearPrompt is shown by confirmers before a clear.
	ClearPrompt = "Clear all events and statistics on the backend?"
)

// Backend is the subset of the backend contract the controller needs.
// *sdk.Client satisfies it.
type Backend interface {
	Stats(ctx context.Context) (*waf.StatsSnapshot, error)
	Events(ctx context.Context, limit int) ([]waf.Event, error)
	Clear(ctx context.Context) error
}

// Confirmer guards destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Confirmed approves without asking. Use it when the caller has already
// obtained confirmation in its own UI.
var Confirmed Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })

// Options configures a Controller.
type Options struct {
	Interval    time.Duration
	EventLimit  int
	AutoRefresh bool
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Controller decides when to talk to the backend. Only the controller
// writes to the store.
type Controller struct {
	backend Backend
	store   *viewstate.Store
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	seq    atomic.Uint64

	mu       sync.Mutex
	interval time.Duration
	limit    int
	auto     bool
	closed   bool
	timer    *repeatingTask

	inflight sync.WaitGroup
	loops    atomic.Int32
}

type repeatingTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a controller. Nothing is fetched until Start.
func New(backend Backend, store *viewstate.Store, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.EventLimit <= 0 {
		opts.EventLimit = DefaultEventLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		backend:  backend,
		store:    store,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer("github.com/oktsec/wafwatch/internal/poller"),
		ctx:      ctx,
		cancel:   cancel,
		interval: opts.Interval,
		limit:    opts.EventLimit,
		auto:     opts.AutoRefresh,
	}
}

// Store returns the store the controller writes to.
func (c *Controller) Store() *viewstate.Store {
	return c.store
}

// Start issues one fetch cycle right away and, if auto-refresh is on,
// starts the repeating task.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.launchCycle()
	if c.auto {
		c.startTimerLocked()
	}
	c.logger.Info("poller started",
		"auto_refresh", c.auto,
		"interval", c.interval.String(),
		"event_limit", c.limit,
	)
}

// AutoRefresh reports whether continuous polling is enabled.
func (c *Controller) AutoRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

// Interval returns the current auto-refresh period.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// SetAutoRefresh toggles continuous polling. Enabling performs one fetch
// cycle immediately and then polls every interval; disabling cancels the
// repeating task. Setting the current value does nothing.
func (c *Controller) SetAutoRefresh(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.auto == enabled {
		return
	}

	c.auto = enabled
	if enabled {
		c.launchCycle()
		c.startTimerLocked()
	} else {
		c.stopTimerLocked()
	}
	c.store.Hub.Publish(viewstate.Change{Resource: viewstate.ResourceControls})
	c.logger.Info("auto-refresh changed", "enabled", enabled)
}

// ToggleAutoRefresh flips auto-refresh and returns the new value.
func (c *Controller) ToggleAutoRefresh() bool {
	enabled := !c.AutoRefresh()
	c.SetAutoRefresh(enabled)
	return enabled
}

// SetInterval changes the polling period. A running task is re-armed with
// the new period; no extra fetch is issued.
func (c *Controller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || d == c.interval {
		return
	}

	c.interval = d
	if c.timer != nil {
		c.stopTimerLocked()
		c.startTimerLocked()
	}
	c.logger.Info("poll interval changed", "interval", d.String())
}

// RefreshNow performs one fetch cycle regardless of auto-refresh state and
// returns once both requests have completed.
func (c *Controller) RefreshNow(ctx context.Context) {
	c.cycle(ctx)
}

// ClearAll wipes backend state after confirm approves it, then performs
// one fetch cycle so the store reflects what the backend now holds. The
// resync runs whether or not the clear request succeeded. A declined
// confirmation returns nil without contacting the backend; otherwise the
// clear request's error is returned for operator reporting.
func (c *Controller) ClearAll(ctx context.Context, confirm Confirmer) error {
	if confirm == nil || !confirm.Confirm(ctx, ClearPrompt) {
		c.metrics.Clears.WithLabelValues("declined").Inc()
		c.logger.Info("clear declined")
		return nil
	}

	err := c.backend.Clear(ctx)
	if err != nil {
		c.metrics.Clears.WithLabelValues("error").Inc()
		c.logger.Warn("clear request failed", "error", err)
	} else {
		c.metrics.Clears.WithLabelValues("ok").Inc()
		c.logger.Info("backend cleared")
	}

	c.cycle(ctx)
	return err
}

// Close cancels the repeating task and waits for in-flight cycles that
// the controller started itself.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.cancel()
	c.mu.Unlock()

	c.inflight.Wait()
	c.metrics.AutoRefresh.Set(0)
	c.logger.Info("poller stopped")
}

// launchCycle runs a fetch cycle on its own goroutine.
func (c *Controller) launchCycle() {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.cycle(c.ctx)
	}()
}

// startTimerLocked starts the single repeating task. Caller holds c.mu.
func (c *Controller) startTimerLocked() {
	if c.timer != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	task := &repeatingTask{cancel: cancel, done: make(chan struct{})}
	c.timer = task
	c.metrics.AutoRefresh.Set(1)

	c.loops.Add(1)
	go c.tick(ctx, c.interval, task.done)
}

// stopTimerLocked cancels the repeating task and waits for it to exit.
// The tick goroutine never takes c.mu, so waiting here cannot deadlock.
func (c *Controller) stopTimerLocked() {
	if c.timer == nil {
		return
	}
	c.timer.cancel()
	<-c.timer.done
	c.timer = nil
	c.metrics.AutoRefresh.Set(0)
}

func (c *Controller) tick(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer c.loops.Add(-1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks do not wait for earlier cycles; sequence numbers keep
			// a straggler from overwriting newer data. Pausing stops new
			// ticks but lets requests already on the wire finish.
			c.launchCycle()
		}
	}
}

// cycle issues the stats and events requests concurrently and applies
// each result independently.
func (c *Controller) cycle(ctx context.Context) {
	seq := c.seq.Add(1)
	c.metrics.Cycles.Inc()

	c.mu.Lock()
	limit := c.limit
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "poller.fetch_cycle",
		trace.WithAttributes(
			attribute.Int64("wafwatch.cycle_seq", int64(seq)),
			attribute.Int("wafwatch.event_limit", limit),
		))
	defer span.End()

	var wg sync.WaitGroup
	wg.Go(func() { c.fetchStats(ctx, seq, span) })
	wg.Go(func() { c.fetchEvents(ctx, seq, limit, span) })
	wg.Wait()
}

func (c *Controller) fetchStats(ctx context.Context, seq uint64, span trace.Span) {
	start := time.Now()
	stats, err := c.backend.Stats(ctx)
	c.metrics.FetchDuration.WithLabelValues(string(viewstate.ResourceStats)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.fail(ctx, viewstate.ResourceStats, seq, err, span)
		return
	}
	if !c.store.ApplyStats(seq, *stats) {
		c.metrics.Fetches.WithLabelValues(string(viewstate.ResourceStats), "stale").Inc()
		c.logger.Debug("discarded stale response", "resource", viewstate.ResourceStats, "seq", seq)
		return
	}
	c.metrics.Fetches.WithLabelValues(string(viewstate.ResourceStats), "ok").Inc()
}

func (c *Controller) fetchEvents(ctx context.Context, seq uint64, limit int, span trace.Span) {
	start := time.Now()
	events, err := c.backend.Events(ctx, limit)
	c.metrics.FetchDuration.WithLabelValues(string(viewstate.ResourceEvents)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.fail(ctx, viewstate.ResourceEvents, seq, err, span)
		return
	}
	if !c.store.ApplyEvents(seq, events) {
		c.metrics.Fetches.WithLabelValues(string(viewstate.ResourceEvents), "stale").Inc()
		c.logger.Debug("discarded stale response", "resource", viewstate.ResourceEvents, "seq", seq)
		return
	}
	c.metrics.Fetches.WithLabelValues(string(viewstate.ResourceEvents), "ok").Inc()
}

// fail logs a fetch error and keeps the previous store value.
func (c *Controller) fail(ctx context.Context, r viewstate.Resource, seq uint64, err error, span trace.Span) {
	c.metrics.Fetches.WithLabelValues(string(r), "error").Inc()
	span.RecordError(err, trace.WithAttributes(attribute.String("wafwatch.resource", string(r))))
	span.SetStatus(codes.Error, "fetch failed")

	if ctx.Err() != nil {
		// Shutting down; not a backend problem.
		c.logger.Debug("fetch cancelled", "resource", r, "seq", seq)
		return
	}
	c.store.RecordFailure(r)
	c.logger.Warn("fetch failed", "resource", r, "seq", seq, "error", err)
}

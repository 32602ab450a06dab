package commands

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oktsec/wafwatch/internal/config"
	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/stretchr/testify/assert"
)

type idleBackend struct{}

func (idleBackend) Stats(context.Context) (*waf.StatsSnapshot, error) {
	return &waf.StatsSnapshot{}, nil
}

func (idleBackend) Events(context.Context, int) ([]waf.Event, error) {
	return []waf.Event{}, nil
}

func (idleBackend) Clear(context.Context) error { return nil }

func newReloadController(t *testing.T, cfg *config.Config) *poller.Controller {
	t.Helper()
	ctrl := poller.New(idleBackend{}, viewstate.New(), poller.Options{
		Interval:    cfg.Poll.Interval,
		EventLimit:  cfg.Poll.EventLimit,
		AutoRefresh: cfg.Poll.AutoRefresh,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(ctrl.Close)
	ctrl.Start()
	return ctrl
}

func TestApplyReload_UnrelatedChangeKeepsPause(t *testing.T) {
	prev := config.Defaults()
	ctrl := newReloadController(t, prev)
	ctrl.SetAutoRefresh(false)

	next := config.Defaults()
	next.LogLevel = "debug"
	next.Backend.Timeout = 3 * time.Second
	applyReload(ctrl, prev, next, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.False(t, ctrl.AutoRefresh(), "an unrelated save must not resume polling")
	assert.Equal(t, prev.Poll.Interval, ctrl.Interval())
}

func TestApplyReload_ChangedSettingsApply(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prev := config.Defaults()
	ctrl := newReloadController(t, prev)

	next := config.Defaults()
	next.Poll.AutoRefresh = false
	next.Poll.Interval = 5 * time.Second
	applyReload(ctrl, prev, next, logger)
	assert.False(t, ctrl.AutoRefresh())
	assert.Equal(t, 5*time.Second, ctrl.Interval())

	// The user resumes; saving the same file again leaves that choice alone.
	ctrl.SetAutoRefresh(true)
	applyReload(ctrl, next, next, logger)
	assert.True(t, ctrl.AutoRefresh())
}

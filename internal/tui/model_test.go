package tui

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	events []waf.Event
	clears int
}

func (f *fakeBackend) Stats(context.Context) (*waf.StatsSnapshot, error) {
	return &waf.StatsSnapshot{TotalRequests: 10, BlockedRequests: 3, AllowedRequests: 7, BlockRate: 30}, nil
}

func (f *fakeBackend) Events(context.Context, int) ([]waf.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]waf.Event(nil), f.events...), nil
}

func (f *fakeBackend) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.events = nil
	return nil
}

func (f *fakeBackend) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func newTestModel(t *testing.T, b poller.Backend) (*Model, *poller.Controller) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctrl := poller.New(b, viewstate.New(), poller.Options{Interval: time.Hour, Logger: logger})
	t.Cleanup(ctrl.Close)
	m := New(ctrl, render.Options{PlainLabels: true}, logger)
	t.Cleanup(m.Close)
	return m, ctrl
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// run executes cmd and feeds its message back, as the program loop would.
func run(m *Model, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	if msg := cmd(); msg != nil {
		m.Update(msg)
	}
}

func TestModel_EmptyPlaceholder(t *testing.T) {
	m, _ := newTestModel(t, &fakeBackend{})
	out := m.View()
	assert.Contains(t, out, render.Placeholder)
	assert.NotContains(t, out, "Last updated")
}

func TestModel_RefreshKey(t *testing.T) {
	b := &fakeBackend{events: []waf.Event{{ID: 5, Action: waf.ActionBlocked, Classification: "malicious", Probability: 0.9763}}}
	m, _ := newTestModel(t, b)

	_, cmd := m.Update(keyPress('r'))
	require.NotNil(t, cmd)
	run(m, cmd)

	out := m.View()
	assert.Contains(t, out, "30.0%")
	assert.Contains(t, out, "97.63%")
	assert.Contains(t, out, "BLOCKED")
	assert.Contains(t, out, "#5")
}

func TestModel_PauseKeyTogglesController(t *testing.T) {
	m, ctrl := newTestModel(t, &fakeBackend{})

	m.Update(keyPress('p'))
	assert.True(t, ctrl.AutoRefresh())
	assert.Contains(t, m.View(), "Pause Auto-Refresh")

	m.Update(keyPress('p'))
	assert.False(t, ctrl.AutoRefresh())
	assert.Contains(t, m.View(), "Resume Auto-Refresh")
}

func TestModel_ClearDeclined(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newTestModel(t, b)

	m.Update(keyPress('c'))
	assert.True(t, strings.Contains(m.View(), "[y/N]"), "clear should prompt first")

	_, cmd := m.Update(keyPress('n'))
	assert.Nil(t, cmd)
	assert.Equal(t, 0, b.clearCount())
	assert.NotContains(t, m.View(), "[y/N]")
}

func TestModel_ClearConfirmed(t *testing.T) {
	b := &fakeBackend{events: []waf.Event{{ID: 1, Action: waf.ActionAllowed}}}
	m, ctrl := newTestModel(t, b)
	ctrl.RefreshNow(context.Background())

	m.Update(keyPress('c'))
	_, cmd := m.Update(keyPress('y'))
	require.NotNil(t, cmd)
	run(m, cmd)

	assert.Equal(t, 1, b.clearCount())
	assert.Empty(t, ctrl.Store().Snapshot().Events)
	assert.Contains(t, m.View(), render.Placeholder)
}

func TestModel_RedrawsOnStoreChange(t *testing.T) {
	b := &fakeBackend{events: []waf.Event{{ID: 9, Action: waf.ActionAllowed, Classification: "benign"}}}
	m, ctrl := newTestModel(t, b)

	cmd := m.Init()
	ctrl.RefreshNow(context.Background())
	msg := cmd()
	assert.IsType(t, changeMsg{}, msg)

	m.Update(msg)
	assert.Contains(t, m.View(), "#9")
}

func TestModel_QuitKey(t *testing.T) {
	m, _ := newTestModel(t, &fakeBackend{})
	_, cmd := m.Update(keyPress('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

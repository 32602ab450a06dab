// Package tui is the terminal dashboard. It draws render.View frames with
// lipgloss and forwards key presses to the poll controller.
package tui

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/viewstate"
)

type changeMsg struct{}

type actionDoneMsg struct{}

// Model is the bubbletea model for the terminal dashboard.
type Model struct {
	ctrl       *poller.Controller
	opts       render.Options
	logger     *slog.Logger
	keys       keyMap
	help       help.Model
	changes    chan viewstate.Change
	view       render.View
	confirming bool
	width      int
}

// New subscribes to the controller's store. Call Close when the program
// exits.
func New(ctrl *poller.Controller, opts render.Options, logger *slog.Logger) *Model {
	m := &Model{
		ctrl:    ctrl,
		opts:    opts,
		logger:  logger,
		keys:    defaultKeys(),
		help:    help.New(),
		changes: ctrl.Store().Hub.Subscribe(),
	}
	m.rerender()
	return m
}

// Close releases the store subscription.
func (m *Model) Close() {
	m.ctrl.Store().Hub.Unsubscribe(m.changes)
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.waitForChange()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case changeMsg:
		m.rerender()
		return m, m.waitForChange()

	case actionDoneMsg:
		m.rerender()
		return m, nil

	case tea.KeyMsg:
		if m.confirming {
			m.confirming = false
			if key.Matches(msg, m.keys.Yes) {
				return m, m.clear()
			}
			m.logger.Info("clear declined")
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.ctrl.ToggleAutoRefresh()
			m.rerender()
		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()
		case key.Matches(msg, m.keys.Clear):
			m.confirming = true
		}
	}
	return m, nil
}

func (m *Model) rerender() {
	m.view = render.Render(m.ctrl.Store().Snapshot(), m.ctrl.AutoRefresh(), m.opts)
}

// waitForChange blocks on the store subscription. A burst of changes
// collapses into one redraw.
func (m *Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return changeMsg{}
				}
			default:
				return changeMsg{}
			}
		}
	}
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.RefreshNow(context.Background())
		return actionDoneMsg{}
	}
}

// clear runs after the in-UI y/N prompt was answered with yes.
func (m *Model) clear() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.ClearAll(context.Background(), poller.Confirmed); err != nil {
			m.logger.Debug("clear from terminal failed", "error", err)
		}
		return actionDoneMsg{}
	}
}

// Run starts the program on the controlling terminal and blocks until the
// user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl *poller.Controller, opts render.Options, logger *slog.Logger) error {
	m := New(ctrl, opts, logger)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/oktsec/wafwatch/internal/config"
	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/telemetry"
	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(cfgFile)
	if err != nil {
		return nil, err
	}
	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *sdk.Client {
	return sdk.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
}

// newController wires a poll controller to the configured backend.
// reg may be nil when metrics are not exported.
func newController(cfg *config.Config, client *sdk.Client, reg prometheus.Registerer, logger *slog.Logger) *poller.Controller {
	return poller.New(client, viewstate.New(), poller.Options{
		Interval:    cfg.Poll.Interval,
		EventLimit:  cfg.Poll.EventLimit,
		AutoRefresh: cfg.Poll.AutoRefresh,
		Logger:      logger,
		Metrics:     poller.NewMetrics(reg),
	})
}

func renderOptions(cfg *config.Config) render.Options {
	return render.Options{
		ShowStale:   cfg.Dashboard.ShowStale,
		PlainLabels: cfg.Dashboard.PlainLabels,
	}
}

// setupTracing installs the span exporter when tracing is enabled and
// returns a shutdown func that is always safe to call.
func setupTracing(cfg *config.Config, w io.Writer, logger *slog.Logger) func() {
	shutdown, err := telemetry.Setup(cfg.Tracing.Enabled, w)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}
}

// applyReload pushes hot-reloadable settings into a running controller.
// Only settings that differ from prev are applied, so saving an unrelated
// change leaves a paused controller paused.
func applyReload(ctrl *poller.Controller, prev, next *config.Config, logger *slog.Logger) {
	if next.Poll.Interval != prev.Poll.Interval {
		ctrl.SetInterval(next.Poll.Interval)
	}
	if next.Poll.AutoRefresh != prev.Poll.AutoRefresh {
		ctrl.SetAutoRefresh(next.Poll.AutoRefresh)
	}
	logger.Info("config reloaded",
		"interval", next.Poll.Interval.String(),
		"auto_refresh", next.Poll.AutoRefresh,
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/oktsec/wafwatch/internal/config"
	"github.com/oktsec/wafwatch/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newWatchCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the live dashboard in the terminal",
		Example: `  wafwatch watch
  wafwatch watch --backend http://10.0.0.2:5000/api
  wafwatch watch --log-file wafwatch.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("watch needs a terminal; use 'wafwatch status' or 'wafwatch events' instead")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Log lines would tear the screen, so they go to a file or nowhere.
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close() //nolint:errcheck // best-effort cleanup
				logOut = f
			}
			logger := cfg.LoggerTo(logOut)
			defer setupTracing(cfg, logOut, logger)()

			client := newClient(cfg)
			ctrl := newController(cfg, client, nil, logger)
			defer ctrl.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl.Start()
			if cfg.Poll.Push {
				go ctrl.Follow(ctx, client)
			}
			go func() {
				prev := cfg
				err := config.Watch(ctx, cfgFile, logger, func(next *config.Config) {
					applyReload(ctrl, prev, next, logger)
					prev = next
				})
				if err != nil {
					logger.Debug("config hot reload unavailable", "error", err)
				}
			}()

			return tui.Run(ctx, ctrl, renderOptions(cfg), logger)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	return cmd
}

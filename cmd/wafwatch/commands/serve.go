package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oktsec/wafwatch/internal/config"
	"github.com/oktsec/wafwatch/internal/dashboard"
	"github.com/oktsec/wafwatch/internal/netutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Dashboard.Port = port
			}
			if bind != "" {
				cfg.Dashboard.Bind = bind
			}

			logger := cfg.Logger()
			defer setupTracing(cfg, os.Stderr, logger)()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			client := newClient(cfg)
			ctrl := newController(cfg, client, reg, logger)
			defer ctrl.Close()

			srv := dashboard.NewServer(ctrl, renderOptions(cfg),
				promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

			ln, actualPort, err := netutil.ListenAutoPort(cfg.Dashboard.Bind, cfg.Dashboard.Port, logger)
			if err != nil {
				return fmt.Errorf("listening: %w", err)
			}
			cfg.Dashboard.Port = actualPort

			printBanner(cfg, srv.AccessCode())

			// Graceful shutdown on SIGINT/SIGTERM
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
					srv.SetOptions(renderOptions(next))
				})
				if err != nil {
					logger.Debug("config hot reload unavailable", "error", err)
				}
			}()

			httpSrv := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				// Event streams end when ctx is cancelled.
				BaseContext: func(net.Listener) context.Context { return ctx },
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- httpSrv.Serve(ln)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override dashboard port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	return cmd
}

func printBanner(cfg *config.Config, dashCode string) {
	bindAddr := cfg.Dashboard.Bind
	if bindAddr == "" {
		bindAddr = netutil.DefaultBind
	}

	mode := "paused"
	if cfg.Poll.AutoRefresh {
		mode = "every " + cfg.Poll.Interval.String()
	}
	if cfg.Poll.Push {
		mode += " + push"
	}

	fmt.Println()
	fmt.Printf("  wafwatch dashboard %s\n", readBuildInfo())
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Dashboard:  http://%s:%d/dashboard\n", bindAddr, cfg.Dashboard.Port)
	fmt.Printf("  Metrics:    http://%s:%d/metrics\n", bindAddr, cfg.Dashboard.Port)
	fmt.Printf("  Backend:    %s\n", cfg.Backend.URL)
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Access code:  %s\n", dashCode)
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Refresh: %s  |  Feed: %d events\n", mode, cfg.Poll.EventLimit)
	fmt.Println()
	fmt.Println("  Enter this code in the browser to access the dashboard.")
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()
}

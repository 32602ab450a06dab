package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/oktsec/wafwatch/internal/backend"
	"github.com/oktsec/wafwatch/internal/netutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newBackendCmd() *cobra.Command {
	var port int
	var bind, store string

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run the reference telemetry backend",
		Long: `Runs a telemetry backend that firewall devices report to and dashboards poll.

Endpoints (under /api): POST /report, GET /events?limit=N, GET /stats,
POST /clear, GET /health, GET /stream (websocket change notifications).`,
		Example: `  wafwatch backend
  wafwatch backend --store sqlite
  wafwatch backend --store redis --port 5001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if store != "" {
				cfg.Server.Store = store
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.Logger()
			defer setupTracing(cfg, os.Stderr, logger)()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := backend.Open(ctx, backend.StoreOptions{
				Kind:        cfg.Server.Store,
				Retention:   cfg.Server.Retention,
				SQLitePath:  cfg.Server.SQLitePath,
				RedisAddr:   cfg.Server.RedisAddr,
				RedisPrefix: cfg.Server.RedisPrefix,
				PostgresURL: cfg.Server.PostgresURL,
			})
			if err != nil {
				return fmt.Errorf("opening %s store: %w", cfg.Server.Store, err)
			}
			defer func() { _ = st.Close() }()

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			reg := prometheus.NewRegistry()
			srv := backend.NewServer(st, backend.Options{
				Logger:         logger,
				Metrics:        backend.NewMetrics(reg),
				MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			})

			ln, actualPort, err := netutil.ListenAutoPort(cfg.Server.Bind, cfg.Server.Port, logger)
			if err != nil {
				return fmt.Errorf("listening: %w", err)
			}

			bindAddr := cfg.Server.Bind
			if bindAddr == "" {
				bindAddr = netutil.DefaultBind
			}
			fmt.Println()
			fmt.Println("  wafwatch backend")
			fmt.Println("  ────────────────────────────────────────")
			fmt.Printf("  API:        http://%s:%d/api\n", bindAddr, actualPort)
			fmt.Printf("  Stream:     ws://%s:%d/api/stream\n", bindAddr, actualPort)
			fmt.Printf("  Store:      %s (keeps %d events)\n", cfg.Server.Store, cfg.Server.Retention)
			fmt.Println("  ────────────────────────────────────────")
			fmt.Println("  Press Ctrl+C to stop.")
			fmt.Println()

			return srv.Serve(ctx, ln)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override backend port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().StringVar(&store, "store", "", "event store: memory, sqlite, redis, postgres")
	return cmd
}

package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/oktsec/wafwatch/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start wafwatch as an MCP server (stdio)",
		Long: `Exposes the backend's stats and event feed as MCP tools. Add to your MCP client config:

  {
    "mcpServers": {
      "wafwatch": {
        "command": "wafwatch",
        "args": ["mcp", "--config", "./wafwatch.yaml"]
      }
    }
  }

Tools: get_stats, list_events, clear_events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol; keep logs quiet on stderr.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

			// Tools fetch on demand, so no background polling.
			cfg.Poll.AutoRefresh = false
			cfg.Poll.EventLimit = max(cfg.Poll.EventLimit, 100)
			ctrl := newController(cfg, newClient(cfg), nil, logger)
			defer ctrl.Close()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := mcpserver.NewServer(ctrl, readBuildInfo().Version, logger)
			return mcpserver.Serve(ctx, s)
		},
	}
}

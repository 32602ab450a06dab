// Package mcp exposes the dashboard's view of a telemetry backend as MCP
// tools, so assistants can read stats and events over stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oktsec/wafwatch/internal/poller"
)

// NewServer creates an MCP server backed by ctrl. Every tool call performs
// a fresh fetch cycle before answering.
func NewServer(ctrl *poller.Controller, version string, logger *slog.Logger) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "wafwatch",
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: "wafwatch reads a web application firewall's telemetry backend. " +
			"Use get_stats for request totals and the block rate, list_events for " +
			"recent firewall decisions, and clear_events to wipe the backend.",
	})

	h := &handlers{ctrl: ctrl, logger: logger}
	s.AddTool(statsTool(), h.handleGetStats)
	s.AddTool(eventsTool(), h.handleListEvents)
	s.AddTool(clearTool(), h.handleClearEvents)
	return s
}

// Serve runs s on stdio until ctx is done or the client disconnects.
func Serve(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

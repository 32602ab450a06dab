package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/waf"
)

const maxListEvents = 100

type handlers struct {
	ctrl   *poller.Controller
	logger *slog.Logger
}

var (
	readOnly = &mcp.ToolAnnotations{
		ReadOnlyHint:    true,
		DestructiveHint: boolPtr(false),
		OpenWorldHint:   boolPtr(false),
	}
	destructive = &mcp.ToolAnnotations{
		DestructiveHint: boolPtr(true),
		OpenWorldHint:   boolPtr(false),
	}
)

func boolPtr(b bool) *bool { return &b }

func statsTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "get_stats",
		Description: "Aggregate firewall statistics: total, allowed and blocked request counts, " +
			"the block rate and when the backend last changed.",
		InputSchema: map[string]any{"type": "object"},
		Annotations: readOnly,
	}
}

func eventsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_events",
		Description: "Recent firewall decisions, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum events to return (default 20, max 100)",
				},
				"action": map[string]any{
					"type":        "string",
					"description": "Only return events with this action: ALLOWED or BLOCKED",
				},
			},
		},
		Annotations: readOnly,
	}
}

func clearTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "clear_events",
		Description: "Delete every stored event and reset all counters on the backend. Irreversible.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confirm": map[string]any{
					"type":        "boolean",
					"description": "Must be true to proceed",
				},
			},
			"required": []string{"confirm"},
		},
		Annotations: destructive,
	}
}

type statsResult struct {
	waf.StatsSnapshot
	BlockRateDisplay string `json:"block_rate_display"`
	Stale            bool   `json:"stale"`
}

func (h *handlers) handleGetStats(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.ctrl.RefreshNow(ctx)
	snap := h.ctrl.Store().Snapshot()
	if snap.StatsSeq == 0 {
		return errorResult("backend unreachable; no statistics fetched yet"), nil
	}
	return jsonResult(statsResult{
		StatsSnapshot:    snap.Stats,
		BlockRateDisplay: render.BlockRate(snap.Stats.BlockRate) + "%",
		Stale:            snap.StatsHealth.Failing(),
	}), nil
}

func (h *handlers) handleListEvents(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := parseArgs(req.Params.Arguments)
	limit := a.integer("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, maxListEvents)

	action := waf.Action(strings.ToUpper(a.str("action", "")))
	switch action {
	case "", waf.ActionAllowed, waf.ActionBlocked:
	default:
		return errorResult(fmt.Sprintf("invalid action %q: use ALLOWED or BLOCKED", action)), nil
	}

	h.ctrl.RefreshNow(ctx)
	snap := h.ctrl.Store().Snapshot()
	if snap.EventsSeq == 0 {
		return errorResult("backend unreachable; no events fetched yet"), nil
	}

	events := make([]waf.Event, 0, limit)
	for _, e := range snap.Events {
		if len(events) == limit {
			break
		}
		if action != "" && e.Action != action {
			continue
		}
		events = append(events, e)
	}
	return jsonResult(map[string]any{
		"events": events,
		"count":  len(events),
		"stale":  snap.EventHealth.Failing(),
	}), nil
}

func (h *handlers) handleClearEvents(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := parseArgs(req.Params.Arguments)
	confirm := poller.ConfirmFunc(func(context.Context, string) bool {
		return a.boolean("confirm")
	})

	if err := h.ctrl.ClearAll(ctx, confirm); err != nil {
		h.logger.Warn("mcp clear failed", "error", err)
		return errorResult(fmt.Sprintf("clear failed: %v", err)), nil
	}
	if !a.boolean("confirm") {
		return errorResult("not cleared: set confirm to true"), nil
	}
	return textResult("Backend events and statistics cleared."), nil
}

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/oktsec/wafwatch/sdk"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and aggregate statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newClient(cfg)

			ctx := commandContext(cmd)
			health, herr := client.Health(ctx)
			stats, err := client.Stats(ctx)
			if err != nil {
				printUnreachable(os.Stdout, client.BaseURL(), err)
				return errors.New("backend unreachable")
			}
			printStatus(os.Stdout, client.BaseURL(), health, herr, stats)
			return nil
		},
	}
}

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	blockedColor = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

func printStatus(w io.Writer, base string, health *sdk.HealthResponse, herr error, stats *waf.StatsSnapshot) {
	healthLine := okColor.Sprint("healthy")
	switch {
	case herr != nil:
		healthLine = warnColor.Sprint("no health endpoint")
	case health.Status != "healthy":
		healthLine = warnColor.Sprint(health.Status)
	}

	last := dimColor.Sprint("never")
	if stats.LastUpdated != nil {
		last = stats.LastUpdated.Local().Format("2006-01-02 15:04:05")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  wafwatch status")
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Backend:       %s\n", base)
	fmt.Fprintf(w, "  Health:        %s\n", healthLine)
	fmt.Fprintf(w, "  Last updated:  %s\n", last)
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Total:         %d\n", stats.TotalRequests)
	fmt.Fprintf(w, "  Allowed:       %s\n", okColor.Sprint(stats.AllowedRequests))
	fmt.Fprintf(w, "  Blocked:       %s\n", blockedColor.Sprint(stats.BlockedRequests))
	fmt.Fprintf(w, "  Block rate:    %s%%\n", render.BlockRate(stats.BlockRate))
	// Reports with an action other than ALLOWED or BLOCKED only count
	// toward the total.
	if other := stats.TotalRequests - stats.AllowedRequests - stats.BlockedRequests; other > 0 {
		fmt.Fprintf(w, "  Other:         %s\n", dimColor.Sprint(other))
	}
	fmt.Fprintln(w)
}

func printUnreachable(w io.Writer, base string, err error) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s backend unreachable\n", blockedColor.Sprint("!!"))
	fmt.Fprintf(w, "  Backend:  %s\n", base)
	fmt.Fprintf(w, "  Error:    %v\n", err)
	fmt.Fprintln(w)
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var action string
	var limit int
	var live bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent firewall events",
		Example: `  wafwatch events
  wafwatch events --action blocked
  wafwatch events --limit 10
  wafwatch events --live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			filter := waf.Action(strings.ToUpper(action))
			switch filter {
			case "", waf.ActionAllowed, waf.ActionBlocked, waf.ActionUnknown:
			default:
				return fmt.Errorf("invalid action %q (allowed, blocked, unknown)", action)
			}

			client := newClient(cfg)
			if live {
				logger := cfg.Logger()
				ctrl := newController(cfg, client, nil, logger)
				defer ctrl.Close()
				ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return streamLive(ctx, os.Stdout, ctrl.Store(), ctrl.Start, filter)
			}

			events, err := client.Events(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			events = filterEvents(events, filter)
			if len(events) == 0 {
				fmt.Println(render.Placeholder)
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			writeEventHeader(tw)
			for _, e := range events {
				writeEventRow(tw, e)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "filter by action (allowed, blocked)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max events to fetch")
	cmd.Flags().BoolVar(&live, "live", false, "keep polling and print new events as they arrive")
	return cmd
}

func filterEvents(events []waf.Event, action waf.Action) []waf.Event {
	if action == "" {
		return events
	}
	out := events[:0:0]
	for _, e := range events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func writeEventHeader(w io.Writer) {
	fmt.Fprintf(w, "ID\tTIME\tACTION\tMETHOD\tPATH\tCLIENT\tCLASS\tPROB\n") //nolint:errcheck // CLI output
}

func writeEventRow(w io.Writer, e waf.Event) {
	act := string(e.Action)
	switch e.Action {
	case waf.ActionBlocked:
		act = blockedColor.Sprint(act)
	case waf.ActionAllowed:
		act = okColor.Sprint(act)
	default:
		act = warnColor.Sprint(act)
	}
	path := e.Path
	if e.Query != "" {
		path += "?" + e.Query
	}
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s%%\n", //nolint:errcheck // CLI output
		e.ID, e.Timestamp.Local().Format("15:04:05"), act, e.Method, path, e.ClientIP,
		e.Classification, render.Probability(e.Probability))
}

// streamLive prints events as the store picks them up, oldest first. A
// newest id lower than the last one printed means the backend was cleared.
func streamLive(ctx context.Context, w io.Writer, store *viewstate.Store, start func(), filter waf.Action) error {
	fmt.Fprintln(w, "Streaming firewall events (Ctrl+C to stop)...") //nolint:errcheck // CLI output
	fmt.Fprintln(w)                                                  //nolint:errcheck // CLI output

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	writeEventHeader(tw)
	_ = tw.Flush()

	changes := store.Hub.Subscribe()
	defer store.Hub.Unsubscribe(changes)
	start()

	var lastID int64
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\nStopped.") //nolint:errcheck // CLI output
			return nil
		case ch := <-changes:
			if ch.Resource != viewstate.ResourceEvents {
				continue
			}
			events := store.Snapshot().Events
			if len(events) > 0 && events[0].ID < lastID {
				fmt.Fprintln(w, dimColor.Sprint("-- backend cleared --")) //nolint:errcheck // CLI output
				lastID = 0
			}

			// Snapshot is newest first; print in arrival order.
			for i := len(events) - 1; i >= 0; i-- {
				e := events[i]
				if e.ID <= lastID {
					continue
				}
				lastID = e.ID
				if filter != "" && e.Action != filter {
					continue
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				writeEventRow(tw, e)
				_ = tw.Flush()
			}
		}
	}
}

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all events and reset statistics on the backend",
		Long: `Asks the backend to drop every stored event and zero its counters.
This cannot be undone. You are asked to confirm unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var confirm poller.Confirmer
			switch {
			case yes:
				confirm = poller.Confirmed
			case term.IsTerminal(int(os.Stdin.Fd())):
				confirm = promptConfirmer(os.Stdin, os.Stdout)
			default:
				return errors.New("refusing to clear without confirmation: stdin is not a terminal, pass --yes")
			}

			logger := cfg.Logger()
			ctrl := newController(cfg, newClient(cfg), nil, logger)
			defer ctrl.Close()

			cleared := false
			wrapped := poller.ConfirmFunc(func(ctx context.Context, prompt string) bool {
				cleared = confirm.Confirm(ctx, prompt)
				return cleared
			})
			if err := ctrl.ClearAll(commandContext(cmd), wrapped); err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}
			if !cleared {
				fmt.Println("Aborted.")
				return nil
			}

			snap := ctrl.Store().Snapshot()
			fmt.Printf("Cleared. Backend now reports %d requests.\n", snap.Stats.TotalRequests)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// promptConfirmer asks on out and accepts y or yes from in. Anything else,
// including EOF, declines.
func promptConfirmer(in io.Reader, out io.Writer) poller.Confirmer {
	return poller.ConfirmFunc(func(_ context.Context, prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt) //nolint:errcheck // CLI output
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	})
}

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oktsec/wafwatch/internal/simulate"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	var count int
	var rate, blockedRate float64

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Post synthetic firewall reports to the backend",
		Example: `  wafwatch simulate --count 100
  wafwatch simulate --rate 10 --blocked-rate 0.5
  wafwatch simulate            # until Ctrl+C`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rate") {
				cfg.Simulate.Rate = rate
			}
			if cmd.Flags().Changed("blocked-rate") {
				cfg.Simulate.BlockedRate = blockedRate
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.Logger()
			defer setupTracing(cfg, os.Stderr, logger)()

			sim := simulate.New(newClient(cfg), simulate.Options{
				Rate:        cfg.Simulate.Rate,
				Burst:       cfg.Simulate.Burst,
				Attempts:    cfg.Simulate.Attempts,
				BlockedRate: cfg.Simulate.BlockedRate,
				Logger:      logger,
			})

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("simulating firewall traffic",
				"backend", cfg.Backend.URL,
				"rate", cfg.Simulate.Rate,
				"blocked_rate", cfg.Simulate.BlockedRate,
				"count", count,
			)
			sum, err := sim.Run(ctx, count)
			if err != nil {
				return err
			}

			fmt.Printf("Sent %d reports (%s blocked, %s allowed), %d failed\n",
				sum.Sent, blockedColor.Sprint(sum.Blocked), okColor.Sprint(sum.Allowed), sum.Failed)
			if sum.Sent == 0 && sum.Failed > 0 {
				return fmt.Errorf("no report reached %s", cfg.Backend.URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "reports to send (0 = until interrupted)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "reports per second (overrides config)")
	cmd.Flags().Float64Var(&blockedRate, "blocked-rate", 0, "fraction of reports that are attacks, 0-1 (overrides config)")
	return cmd
}

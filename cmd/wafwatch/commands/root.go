package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	backendURL string
)

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "wafwatch",
		Short: "Live dashboard for web application firewall telemetry",
		Long: "wafwatch polls a WAF telemetry backend and shows request totals, the block rate " +
			"and the most recent firewall decisions in a browser or the terminal.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "wafwatch.yaml", "config file path")
	root.PersistentFlags().StringVar(&backendURL, "backend", "", "backend API base URL (overrides config)")

	root.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newBackendCmd(),
		newStatusCmd(),
		newEventsCmd(),
		newClearCmd(),
		newSimulateCmd(),
		newMCPCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}

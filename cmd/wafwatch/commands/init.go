package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/oktsec/wafwatch/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeDefaultConfig(cfgFile, backendURL, force); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", cfgFile)
			fmt.Println("Edit backend.url to point at your telemetry backend, then run 'wafwatch serve' or 'wafwatch watch'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func writeDefaultConfig(path, backend string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	cfg := config.Defaults()
	if backend != "" {
		cfg.Backend.URL = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.Save(path)
}

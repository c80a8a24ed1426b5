package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	tomlrepo "github.com/bnema/slotwall/internal/adapters/repo/toml"
	"github.com/spf13/cobra"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect slotwall configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(app),
		newConfigPathCmd(app),
	)

	return cmd
}

func newConfigShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := tomlrepo.EncodeSettings(app.settings)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigPathCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := app.settings.ConfigFile
			if path == "" {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home directory: %w", err)
				}
				path = filepath.Join(homeDir, ".slotwall", "config.toml") + " (not found, using defaults)"
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "sw",
		Short:         "slotwall (sw): simulate a priority-driven slot wall",
		Long:          "sw replays claim, solve and manual-view scenarios against a bounded pool of viewing slots, showing which items win a slot, when the wall expands, and how deferred releases backfill freed slots.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		app.initLogger(cmd.ErrOrStderr(), debug)
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		_ = app.logger.Sync()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newSimulateCmd(app),
		newShowCmd(app),
	)

	return rootCmd
}

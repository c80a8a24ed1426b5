package cmd

import (
	"fmt"
	"time"

	tomlrepo "github.com/bnema/slotwall/internal/adapters/repo/toml"
	statusadapter "github.com/bnema/slotwall/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

func newShowCmd(app *app) *cobra.Command {
	var (
		hideEmpty bool
		columns   int
	)

	cmd := &cobra.Command{
		Use:   "show <snapshot.toml>",
		Short: "Render a snapshot written by simulate --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tomlrepo.NewSnapshotStore(args[0])
			if err != nil {
				return err
			}

			saved, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			title := "Slot Wall"
			if saved.Scenario != "" {
				title = fmt.Sprintf("Slot Wall: %s", saved.Scenario)
			}
			rendered, err := app.statusRenderer(saved.Snapshot, statusadapter.RenderOptions{
				Title:     title,
				Now:       saved.Snapshot.TakenAt,
				HideEmpty: hideEmpty,
				Columns:   columns,
			})
			if err != nil {
				return fmt.Errorf("render wall: %w", err)
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, rendered); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "\ndecisions: %d recorded\n", saved.Decisions); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "elapsed: %s\n", saved.Elapsed.Round(time.Millisecond)); err != nil {
				return err
			}
			for _, stepErr := range saved.StepErrors {
				if _, err := fmt.Fprintf(out, "warning: %s\n", stepErr); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&hideEmpty, "hide-empty", false, "Hide empty slots")
	cmd.Flags().IntVar(&columns, "columns", 0, "Lay slots out in this many columns")
	return cmd
}

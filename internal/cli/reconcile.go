package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ReconcileOptions struct {
	*RootOptions
	UserID string
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild user rows from the activity ledger",
		Long: `Reconcile recomputes TotalXP, streak and badge columns from the activity
ledger and rewrites the rows that drifted. Without --id every user is checked.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()

			if opts.UserID != "" {
				changed, err := a.Reconcile(cmd.Context(), opts.UserID)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("%s: up to date", opts.UserID)
				if changed {
					text = fmt.Sprintf("%s: repaired", opts.UserID)
				}
				return emit(cmd.OutOrStdout(), opts.Format, map[string]any{"user": opts.UserID, "changed": changed}, text)
			}

			n, err := a.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts.Format, map[string]int{"changed": n}, fmt.Sprintf("%d user(s) repaired", n))
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "id", "", "reconcile only this user")

	return cmd
}

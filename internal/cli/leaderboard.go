package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auritra-bit/sunnie-bot-V2/internal/derive"
)

type LeaderboardOptions struct {
	*RootOptions
	Window string
	Top    int
}

var windows = map[string]derive.Window{
	"all":     derive.AllTime,
	"weekly":  derive.Weekly,
	"monthly": derive.Monthly,
}

func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeaderboardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "leaderboard",
		Short:         "Print the XP leaderboard",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, ok := windows[opts.Window]
			if !ok {
				return fmt.Errorf("invalid window %q: must be all, weekly or monthly", opts.Window)
			}
			a, closeFn, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()

			top := opts.Top
			if top <= 0 {
				top = a.Policy.LeaderboardSize
			}
			entries, err := a.Repo.Leaderboard(cmd.Context(), w, a.Clock.Now(), top)
			if err != nil {
				return err
			}

			var b strings.Builder
			for i, e := range entries {
				if i > 0 {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "%d. %s - %d XP", i+1, e.Name, e.XP)
			}
			if len(entries) == 0 {
				b.WriteString("no activity yet")
			}
			type row struct {
				Rank int    `json:"rank"`
				Name string `json:"name"`
				XP   int    `json:"xp"`
			}
			rows := make([]row, len(entries))
			for i, e := range entries {
				rows[i] = row{Rank: i + 1, Name: e.Name, XP: e.XP}
			}
			return emit(cmd.OutOrStdout(), opts.Format, map[string]any{"window": w.String(), "entries": rows}, b.String())
		},
	}

	cmd.Flags().StringVar(&opts.Window, "window", "all", "ranking window (all|weekly|monthly)")
	cmd.Flags().IntVar(&opts.Top, "top", 0, "number of entries (defaults to the policy leaderboard size)")

	return cmd
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auritra-bit/sunnie-bot-V2/internal/bot"
)

type ExecOptions struct {
	*RootOptions
	UserID   string
	Username string
}

func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Run one bot command and print the reply",
		Long: `Exec runs a single chat command against the configured store, the same
way GET /sunnie/{command} does.

Examples:
  sunnie exec attend --user ana --id 42
  sunnie exec task --user ana --id 42 Physics chapter 3`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()

			name := strings.ToLower(strings.TrimPrefix(args[0], "!"))
			if !a.Bot.Known(name) {
				return fmt.Errorf("unknown command %q", name)
			}
			username := opts.Username
			if username == "" {
				username = opts.UserID
			}
			reply := a.Bot.Handle(cmd.Context(), bot.Command{
				Name:     name,
				Args:     strings.Join(args[1:], " "),
				UserID:   opts.UserID,
				Username: username,
			})
			return emit(cmd.OutOrStdout(), opts.Format, map[string]string{"command": name, "reply": reply}, reply)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "id", "cli", "platform user id")
	cmd.Flags().StringVar(&opts.Username, "user", "", "display name (defaults to --id)")

	return cmd
}

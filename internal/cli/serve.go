package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auritra-bit/sunnie-bot-V2/internal/app"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
)

type ServeOptions struct {
	*RootOptions
	Addr string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP command server and background loops",
		Long: `Serve exposes GET /sunnie/{command} and runs the reminder scheduler
and the inactivity monitor until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides HTTP_ADDR)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	lg, err := opts.logger(false)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	pol, err := policy.FromEnv()
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	cfg := app.ConfigFromEnv()
	if opts.Addr != "" {
		cfg.HTTPAddr = opts.Addr
	}
	a, err := app.New(ctx, cfg, pol, sugar, opts.appOptions...)
	if err != nil {
		return err
	}
	// Serve closes the app
	return a.Serve(ctx)
}

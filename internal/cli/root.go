// Package cli is the sunnie command line: the server plus one-shot
// maintenance commands that run against the configured store.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/app"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile    string
	PolicyFile string
	Verbose    bool
	Format     string // "json" | "text"

	// appOptions are passed to app.New; tests use them to swap the store
	// and clock.
	appOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sunnie",
		Short: "Sunnie-BOT study companion",
		Long:  "Sunnie-BOT tracks study sessions, tasks and goals and turns them into XP, streaks and badges.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.EnvFile != "" {
				if err := godotenv.Load(opts.EnvFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			} else {
				_ = godotenv.Load()
			}
			if opts.PolicyFile != "" {
				return os.Setenv("POLICY_FILE", opts.PolicyFile)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "load environment from this file instead of ./.env")
	cmd.PersistentFlags().StringVar(&opts.PolicyFile, "policy", "", "YAML policy file (overrides POLICY_FILE)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewLeaderboardCommand(opts))

	return cmd
}

// logger builds the process logger. One-shot commands log to stderr and
// only warnings unless --verbose is set.
func (o *RootOptions) logger(oneShot bool) (*zap.Logger, error) {
	cfg := utilities.ConfigFromEnv()
	if oneShot {
		cfg.Stderr = true
		if !o.Verbose && cfg.Level == "info" {
			cfg.Level = "warn"
		}
	}
	return utilities.Init(cfg)
}

// open builds the application from the environment. The returned func
// drains writes and flushes the logger.
func (o *RootOptions) open(ctx context.Context, oneShot bool) (*app.App, func(), error) {
	lg, err := o.logger(oneShot)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	pol, err := policy.FromEnv()
	if err != nil {
		_ = lg.Sync()
		return nil, nil, fmt.Errorf("load policy: %w", err)
	}
	a, err := app.New(ctx, app.ConfigFromEnv(), pol, lg.Sugar(), o.appOptions...)
	if err != nil {
		_ = lg.Sync()
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), app.DrainTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			lg.Sugar().Warnw("draining writes failed", "err", err)
		}
		_ = lg.Sync()
	}
	return a, closeFn, nil
}

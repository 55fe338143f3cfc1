package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/auritra-bit/sunnie-bot-V2/internal/app"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting sunnie-bot")

	pol, err := policy.FromEnv()
	if err != nil {
		sugar.Warnw("policy file ignored, using defaults", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.ConfigFromEnv(), pol, sugar)
	if err != nil {
		sugar.Fatalf("init: %v", err)
	}
	if err := a.Serve(ctx); err != nil {
		sugar.Errorw("server stopped", "err", err)
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

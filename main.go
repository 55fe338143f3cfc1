package main

import (
	"fmt"
	"os"

	"github.com/auritra-bit/sunnie-bot-V2/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sunnie: %v\n", err)
		os.Exit(1)
	}
}

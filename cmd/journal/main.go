package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tradejournal/internal/cli"
)

func main() {
	// Ctrl-C cancels the running command; open transactions roll back
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

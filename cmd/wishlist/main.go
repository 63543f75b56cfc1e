package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kerhoff/wishlist/internal/cli"
)

func main() {
	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

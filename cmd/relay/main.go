// relay is the command line client for the agent mailbox relay.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/treksavvysky/a2a-protocol/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}

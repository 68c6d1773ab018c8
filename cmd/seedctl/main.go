package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flowseed/internal/apperr"
	"flowseed/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if code := apperr.CodeOf(err); code != "" {
			fmt.Fprintf(os.Stderr, "seedctl: [%s] %v\n", code, err)
		} else {
			fmt.Fprintf(os.Stderr, "seedctl: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

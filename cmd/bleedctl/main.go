package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/founderbleed/bleed/internal/bleedctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bleedctl.NewRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("bleedctl: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

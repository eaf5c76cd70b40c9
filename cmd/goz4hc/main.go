package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommandeer().cmd.ExecuteContext(ctx); err != nil {
		log.G(ctx).WithError(err).Error("goz4hc failed")
		stop()
		os.Exit(1)
	}
}

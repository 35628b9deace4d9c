package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const configPath = "config/goicq.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

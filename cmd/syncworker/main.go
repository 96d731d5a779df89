package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/tessera-fund/vaultx/app/sync"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := sync.Initialize(ctx)
	app.Start(ctx)
}

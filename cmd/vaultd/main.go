package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	vaultapp "github.com/tessera-fund/vaultx/app/vault"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := vaultapp.Initialize(ctx)

	if err := vaultapp.NewServer(app); err != nil {
		app.Logger.Fatal("Unable to initialize server", zap.Error(err))
	}

	app.Start(ctx)
}

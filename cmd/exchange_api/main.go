package main

import (
	"context"
	"github.com/langowen/exchange-rates/deploy/config"
	"github.com/langowen/exchange-rates/internal/exchange_api/app"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := config.NewConfig()

	ctx, cancel := context.WithCancel(context.Background())

	exchangeApp := app.NewApp(cfg)
	serverDone := exchangeApp.Start(ctx)

	done := make(chan os.Signal, 1)

	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-done
	slog.Info("Gracefully shutting down")

	cancel()
	slog.Info("stopping server")

	<-serverDone
	slog.Info("server stopped")
}

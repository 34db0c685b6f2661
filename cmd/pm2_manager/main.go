package main

import (
	"context"
	"github.com/langowen/exchange-rates/deploy/config"
	"github.com/langowen/exchange-rates/internal/logging"
	"github.com/langowen/exchange-rates/internal/pm2_manager/adapter/pm2"
	"github.com/langowen/exchange-rates/internal/pm2_manager/ports/http/public"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := config.NewConfig()

	slog.SetDefault(logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format))

	ctx, cancel := context.WithCancel(context.Background())

	manager := pm2.NewManager(pm2.ExecRunner{}, cfg.Supervisor.Binary, cfg.Supervisor.Timeout)
	serverDone := public.StartServer(ctx, manager, cfg)
	slog.Info("pm2 manager started", "port", cfg.Supervisor.Port)

	done := make(chan os.Signal, 1)

	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-done
	slog.Info("Gracefully shutting down")

	cancel()

	<-serverDone
	slog.Info("server stopped")
}

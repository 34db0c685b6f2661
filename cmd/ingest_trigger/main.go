package main

import (
	"context"
	"github.com/langowen/exchange-rates/deploy/config"
	"github.com/langowen/exchange-rates/internal/logging"
	"github.com/langowen/exchange-rates/internal/trigger"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := config.NewConfig()

	slog.SetDefault(logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format))

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalln("Failed to load provider time zone", "error", err)
	}

	tr := trigger.New(trigger.Options{
		TargetURL:   cfg.Trigger.TargetURL,
		ReadURL:     cfg.Trigger.ReadURL,
		CatchUpDays: cfg.Trigger.CatchUpDays,
		Location:    loc,
		Hour:        cfg.Trigger.Hour,
		Minute:      cfg.Trigger.Minute,
		Timeout:     cfg.Trigger.Timeout,
		Retry: trigger.RetryConfig{
			MaxAttempts: cfg.Trigger.MaxAttempts,
			BaseDelay:   cfg.Trigger.BaseBackoff,
			MaxDelay:    cfg.Trigger.MaxBackoff,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("ingest trigger started", "target", cfg.Trigger.TargetURL, "hour", cfg.Trigger.Hour, "minute", cfg.Trigger.Minute)

	tr.Run(ctx, cfg.Trigger.RunOnStart)
}

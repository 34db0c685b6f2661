package app

import (
	"context"
	"github.com/langowen/exchange-rates/deploy/config"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/api_client/koreaexim"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/notify/kafka"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/notify/redis"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/storage/badger"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/storage/migrate"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/storage/postgres"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/storage/postgrest"
	"github.com/langowen/exchange-rates/internal/exchange_api/ports/http/public"
	"github.com/langowen/exchange-rates/internal/exchange_api/service"
	"github.com/langowen/exchange-rates/internal/logging"
	"github.com/langowen/exchange-rates/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redisPack "github.com/redis/go-redis/v9"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type App struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	closers  []func()
}

func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Start wires the service and serves HTTP until ctx is cancelled. The returned
// channel closes once the server has stopped and every adapter is released.
func (a *App) Start(ctx context.Context) <-chan struct{} {
	a.initLogger()
	slog.Info("Logger initialized")

	slog.Info("starting exchange api",
		"port", a.cfg.HTTPServer.Port,
		"storage", a.cfg.Storage.Driver,
		"notify", a.cfg.Notify.Driver,
	)

	a.initMetrics()

	storage := a.initStorage(ctx)
	slog.Info("Storage initialized", "driver", a.cfg.Storage.Driver)

	notifier := a.initNotifier(ctx)
	slog.Info("Notifier initialized", "driver", a.cfg.Notify.Driver)

	rateService := a.initService(storage, notifier)
	slog.Info("Service initialized")

	serverDone := public.StartServer(ctx, rateService, a.cfg, a.metrics, a.registry)
	slog.Info("server started")

	done := make(chan struct{})
	go func() {
		<-serverDone
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
		close(done)
	}()

	return done
}

func (a *App) initLogger() {
	slog.SetDefault(logging.New(os.Stdout, a.cfg.Log.Level, a.cfg.Log.Format))
}

func (a *App) initMetrics() {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)
}

func (a *App) initStorage(ctx context.Context) service.Storage {
	cfg := a.cfg.Storage

	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.Migrate {
			if err := migrate.Up(a.cfg.PostgresURL()); err != nil {
				log.Fatalln("Failed to apply migrations", "error", err)
			}
		}

		pgStorage, err := postgres.InitStorage(ctx, a.cfg.PostgresDSN(), cfg.Timeout, cfg.MaxWindowDays)
		if err != nil {
			log.Fatalln("Failed to initialize PostgresSQL storage", "error", err)
		}
		a.closers = append(a.closers, pgStorage.Close)

		return pgStorage

	case config.DriverBadger:
		bStorage, err := badger.Open(cfg.BadgerPath, cfg.MaxWindowDays)
		if err != nil {
			log.Fatalln("Failed to open badger storage", "error", err)
		}
		a.closers = append(a.closers, func() {
			if err := bStorage.Close(); err != nil {
				slog.Error("Failed to close badger storage", "error", err)
			}
		})

		return bStorage

	default:
		return postgrest.NewStorage(&http.Client{}, postgrest.Options{
			BaseURL:       cfg.PostgRESTURL,
			Table:         cfg.PostgRESTTable,
			Timeout:       cfg.Timeout,
			MaxWindowDays: cfg.MaxWindowDays,
		})
	}
}

func (a *App) initNotifier(ctx context.Context) service.Notifier {
	cfg := a.cfg.Notify

	switch cfg.Driver {
	case config.NotifyRedis:
		options := &redisPack.Options{
			Addr:     cfg.RedisHost,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}

		notifier, err := redis.InitNotifier(ctx, options, cfg.RedisChannel)
		if err != nil {
			log.Fatalln("Failed to initialize Redis notifier", "error", err)
		}
		a.closers = append(a.closers, func() { _ = notifier.Close() })

		return notifier

	case config.NotifyKafka:
		publisher := kafka.NewPublisher(a.cfg.KafkaBrokers(), cfg.KafkaTopic)
		a.closers = append(a.closers, func() {
			if err := publisher.Close(); err != nil {
				slog.Error("Failed to close kafka publisher", "error", err)
			}
		})

		return publisher

	default:
		return nil
	}
}

func (a *App) initService(storage service.Storage, notifier service.Notifier) *service.Service {
	loc, err := a.cfg.Location()
	if err != nil {
		log.Fatalln("Failed to load provider time zone", "error", err)
	}

	client := koreaexim.NewHTTPClient(koreaexim.Options{
		URL:                a.cfg.Provider.URL,
		AuthKey:            a.cfg.Provider.AuthKey,
		Timeout:            a.cfg.Provider.Timeout,
		Location:           loc,
		InsecureSkipVerify: a.cfg.Provider.InsecureSkipVerify,
	})

	rateService, err := service.NewService(storage, client,
		service.WithNotifier(notifier),
		service.WithMetrics(a.metrics),
		service.WithLocation(loc),
		service.WithMaxWindowDays(a.cfg.Storage.MaxWindowDays),
		service.WithClock(time.Now),
	)
	if err != nil {
		log.Fatalln("Failed to initialize rate service", "error", err)
	}

	return rateService
}

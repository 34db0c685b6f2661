package service

import (
	"context"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/langowen/exchange-rates/internal/exchange_api/formatter"
	"github.com/langowen/exchange-rates/internal/exchange_api/normalizer"
	"github.com/langowen/exchange-rates/internal/metrics"
	"github.com/pkg/errors"
	"log/slog"
	"time"
)

const outcomeOK = "ok"

type Service struct {
	storage       Storage
	client        RateClient
	notifier      Notifier
	metrics       *metrics.Metrics
	location      *time.Location
	maxWindowDays int
	now           func() time.Time
}

type Option func(s *Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLocation sets the zone that decides what "today" is for ingestion.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithMaxWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.maxWindowDays = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(storage Storage, client RateClient, opts ...Option) (*Service, error) {
	if storage == nil {
		return nil, errors.New("service.NewService: storage is required")
	}
	if client == nil {
		return nil, errors.New("service.NewService: rate client is required")
	}

	s := &Service{
		storage:       storage,
		client:        client,
		notifier:      nopNotifier{},
		metrics:       metrics.NewNop(),
		location:      time.UTC,
		maxWindowDays: 100,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Today is the current business date in the provider's zone.
func (s *Service) Today() time.Time {
	return entities.TruncateDate(s.now().In(s.location))
}

func (s *Service) MaxWindowDays() int {
	return s.maxWindowDays
}

// Ingest fetches, normalizes and stores the rates published for date. Nothing
// is written when the fetch or normalization fails.
func (s *Service) Ingest(ctx context.Context, date time.Time) (inserted int, err error) {
	const op = "service.Ingest"

	day := entities.TruncateDate(date)
	defer func() {
		outcome := outcomeOK
		if err != nil {
			outcome = string(entities.KindOf(err))
		}
		s.metrics.RecordIngest(outcome, inserted)
	}()

	if day.After(s.Today()) {
		return 0, errors.Wrapf(entities.ErrInvalidDate, "%s: %s is in the future", op, day.Format(entities.DateLayout))
	}

	started := time.Now()
	records, err := s.client.FetchRates(ctx, day)
	s.metrics.ObserveProvider(time.Since(started))
	if err != nil {
		return 0, errors.Wrap(err, op)
	}

	quotes, err := normalizer.Normalize(day, records)
	if err != nil {
		return 0, errors.Wrap(err, op)
	}
	if len(quotes) == 0 {
		return 0, errors.Wrapf(entities.ErrNoDataForDate, "%s: no supported currencies for %s", op, day.Format(entities.DateLayout))
	}

	started = time.Now()
	inserted, err = s.storage.Upsert(ctx, quotes)
	s.metrics.ObserveStore("upsert", time.Since(started))
	if err != nil {
		return 0, errors.Wrap(err, op)
	}

	event := entities.NewRatesIngested(day, inserted, s.now())
	if perr := s.notifier.Publish(ctx, event); perr != nil {
		slog.Warn("Failed to publish rates update", "op", op, "date", event.Date, "error", perr)
	}

	slog.Info("Rates ingested", "date", event.Date, "inserted", inserted)

	return inserted, nil
}

// Rates reads the trailing window and shapes it for the caller. Fewer stored
// dates than requested is not an error.
func (s *Service) Rates(ctx context.Context, days int, shape formatter.Shape) (*formatter.Output, error) {
	const op = "service.Rates"

	if err := entities.ValidateWindow(days, s.maxWindowDays); err != nil {
		return nil, errors.Wrap(err, op)
	}
	if _, err := formatter.ParseShape(string(shape)); err != nil {
		return nil, errors.Wrap(err, op)
	}

	started := time.Now()
	quotes, err := s.storage.ReadWindow(ctx, days)
	s.metrics.ObserveStore("read_window", time.Since(started))
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	out, err := formatter.Format(quotes, shape)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	out.Metadata.RequestedDays = days

	return out, nil
}

func (s *Service) Health(ctx context.Context) error {
	started := time.Now()
	err := s.storage.Ping(ctx)
	s.metrics.ObserveStore("ping", time.Since(started))

	return err
}

// LatestDate is the most recent stored business date, or "" for an empty store.
func (s *Service) LatestDate(ctx context.Context) (string, error) {
	const op = "service.LatestDate"

	started := time.Now()
	quotes, err := s.storage.ReadWindow(ctx, 1)
	s.metrics.ObserveStore("read_window", time.Since(started))
	if err != nil {
		return "", errors.Wrap(err, op)
	}
	if len(quotes) == 0 {
		return "", nil
	}

	return quotes[0].DateString(), nil
}

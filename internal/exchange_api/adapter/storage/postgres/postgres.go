package postgres

import (
	"context"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"time"
)

const uniqueViolation = "23505"

const upsertQuery = `
	INSERT INTO exchange_rates (date, currency, buy_rate, sell_rate, base_rate)
	VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric)
	ON CONFLICT (date, currency)
	DO UPDATE SET buy_rate = EXCLUDED.buy_rate,
	              sell_rate = EXCLUDED.sell_rate,
	              base_rate = EXCLUDED.base_rate,
	              updated_at = now()
`

type Storage struct {
	db            *pgxpool.Pool
	timeout       time.Duration
	maxWindowDays int
}

func NewStorage(pool *pgxpool.Pool, timeout time.Duration, maxWindowDays int) *Storage {
	return &Storage{
		db:            pool,
		timeout:       timeout,
		maxWindowDays: maxWindowDays,
	}
}

func InitStorage(ctx context.Context, dsn string, timeout time.Duration, maxWindowDays int) (*Storage, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 10 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(pool, timeout, maxWindowDays), nil
}

func (s *Storage) Close() {
	s.db.Close()
}

func (s *Storage) Upsert(ctx context.Context, quotes []entities.RateQuote) (int, error) {
	const op = "storage.postgres.Upsert"

	if len(quotes) == 0 {
		return 0, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(classify(err), op)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(upsertQuery, q.Date, q.Currency.String(),
			q.BuyRate.StringFixed(entities.RatePrecision),
			q.SellRate.StringFixed(entities.RatePrecision),
			q.BaseRate.StringFixed(entities.RatePrecision),
		)
	}

	written, err := execBatch(tx.SendBatch(ctx, batch), len(quotes))
	if err != nil {
		return 0, errors.Wrap(classify(err), op)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(classify(err), op)
	}

	return written, nil
}

func (s *Storage) ReadWindow(ctx context.Context, days int) ([]entities.RateQuote, error) {
	const op = "storage.postgres.ReadWindow"

	if err := entities.ValidateWindow(days, s.maxWindowDays); err != nil {
		return nil, errors.Wrap(err, op)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		WITH recent AS (
			SELECT DISTINCT date FROM exchange_rates ORDER BY date DESC LIMIT $1
		)
		SELECT r.date, r.currency, r.buy_rate::text, r.sell_rate::text, r.base_rate::text
		FROM exchange_rates r
		JOIN recent USING (date)
		ORDER BY r.date DESC, r.id ASC
	`, days)
	if err != nil {
		return nil, errors.Wrap(classify(err), op)
	}
	defer rows.Close()

	quotes := make([]entities.RateQuote, 0, days*len(entities.Currencies))
	for rows.Next() {
		var (
			date            time.Time
			currency        string
			buy, sell, base string
		)
		if err = rows.Scan(&date, &currency, &buy, &sell, &base); err != nil {
			return nil, errors.Wrap(err, op)
		}

		q, err := toQuote(date, currency, buy, sell, base)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		quotes = append(quotes, *q)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(classify(err), op)
	}

	return quotes, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.postgres.Ping"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		return errors.Wrap(classify(err), op)
	}

	return nil
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.timeout)
}

// classify maps driver errors onto store error kinds.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return errors.Wrap(entities.ErrConflict, pgErr.Message)
		}
		return err
	}

	return errors.Wrap(entities.ErrGatewayUnavailable, err.Error())
}

func execBatch(br pgx.BatchResults, n int) (int, error) {
	written := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, err
		}
		written += int(tag.RowsAffected())
	}

	return written, br.Close()
}

func toQuote(date time.Time, currency, buy, sell, base string) (*entities.RateQuote, error) {
	b, err := decimal.NewFromString(buy)
	if err != nil {
		return nil, err
	}
	sl, err := decimal.NewFromString(sell)
	if err != nil {
		return nil, err
	}
	bs, err := decimal.NewFromString(base)
	if err != nil {
		return nil, err
	}

	return entities.NewRateQuote(entities.Currency(currency), date, b, sl, bs)
}

package badger

import (
	"context"
	"encoding/json"
	"github.com/dgraph-io/badger/v3"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"sort"
	"strings"
)

const (
	ratePrefix   = "rate:"
	sequenceKey  = "seq:rate"
	seqBandwidth = 100
)

type record struct {
	Seq      uint64          `json:"seq"`
	Currency string          `json:"currency"`
	Date     string          `json:"date"`
	BuyRate  decimal.Decimal `json:"buy_rate"`
	SellRate decimal.Decimal `json:"sell_rate"`
	BaseRate decimal.Decimal `json:"base_rate"`
}

// Storage keeps rate quotes in an embedded badger database. Keys are
// rate:<date>:<currency>; seq preserves insertion order within a date.
type Storage struct {
	db            *badger.DB
	seq           *badger.Sequence
	ownsDB        bool
	maxWindowDays int
}

func Open(path string, maxWindowDays int) (*Storage, error) {
	const op = "storage.badger.Open"

	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	s, err := NewStorage(db, maxWindowDays)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, op)
	}
	s.ownsDB = true

	return s, nil
}

func NewStorage(db *badger.DB, maxWindowDays int) (*Storage, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db, seq: seq, maxWindowDays: maxWindowDays}, nil
}

func (s *Storage) Close() error {
	err := s.seq.Release()
	if s.ownsDB {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}

// Upsert reads each key and writes it inside one transaction. Two concurrent
// upserts of the same key can race; the loser gets ErrConflict.
func (s *Storage) Upsert(ctx context.Context, quotes []entities.RateQuote) (int, error) {
	const op = "storage.badger.Upsert"

	if len(quotes) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrapf(entities.ErrGatewayUnavailable, "%s: %v", op, err)
	}

	written := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		written = 0
		for _, q := range quotes {
			key := rateKey(q.DateString(), q.Currency)

			rec := record{
				Currency: q.Currency.String(),
				Date:     q.DateString(),
				BuyRate:  q.BuyRate,
				SellRate: q.SellRate,
				BaseRate: q.BaseRate,
			}

			item, err := txn.Get(key)
			switch {
			case err == nil:
				var existing record
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); err != nil {
					return err
				}
				rec.Seq = existing.Seq
			case errors.Is(err, badger.ErrKeyNotFound):
				if rec.Seq, err = s.seq.Next(); err != nil {
					return err
				}
			default:
				return err
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(classify(err), op)
	}

	return written, nil
}

func (s *Storage) ReadWindow(ctx context.Context, days int) ([]entities.RateQuote, error) {
	const op = "storage.badger.ReadWindow"

	if err := entities.ValidateWindow(days, s.maxWindowDays); err != nil {
		return nil, errors.Wrap(err, op)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(entities.ErrGatewayUnavailable, "%s: %v", op, err)
	}

	var byDate [][]record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(ratePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		current := ""
		for it.Seek(append([]byte(ratePrefix), 0xFF)); it.Valid(); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}

			if rec.Date != current {
				if len(byDate) == days {
					break
				}
				current = rec.Date
				byDate = append(byDate, nil)
			}
			byDate[len(byDate)-1] = append(byDate[len(byDate)-1], rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), op)
	}

	quotes := make([]entities.RateQuote, 0, days*len(entities.Currencies))
	for _, recs := range byDate {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
		for _, rec := range recs {
			q, err := toQuote(rec)
			if err != nil {
				return nil, errors.Wrap(err, op)
			}
			quotes = append(quotes, *q)
		}
	}

	return quotes, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.Wrap(entities.ErrGatewayUnavailable, "storage.badger.Ping: database closed")
	}

	return ctx.Err()
}

func rateKey(date string, cur entities.Currency) []byte {
	return []byte(ratePrefix + date + ":" + strings.ToUpper(cur.String()))
}

func classify(err error) error {
	switch {
	case errors.Is(err, badger.ErrConflict):
		return errors.Wrap(entities.ErrConflict, err.Error())
	case errors.Is(err, badger.ErrDBClosed), errors.Is(err, badger.ErrBlockedWrites):
		return errors.Wrap(entities.ErrGatewayUnavailable, err.Error())
	default:
		return err
	}
}

func toQuote(rec record) (*entities.RateQuote, error) {
	date, err := entities.ParseDate(rec.Date)
	if err != nil {
		return nil, err
	}

	return entities.NewRateQuote(entities.Currency(rec.Currency), date, rec.BuyRate, rec.SellRate, rec.BaseRate)
}

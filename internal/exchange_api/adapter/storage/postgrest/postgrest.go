package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const rowColumns = "id,date,currency,buy_rate,sell_rate,base_rate"

type row struct {
	ID       int64           `json:"id,omitempty"`
	Date     string          `json:"date"`
	Currency string          `json:"currency"`
	BuyRate  decimal.Decimal `json:"buy_rate"`
	SellRate decimal.Decimal `json:"sell_rate"`
	BaseRate decimal.Decimal `json:"base_rate"`
}

type Options struct {
	BaseURL       string
	Table         string
	Timeout       time.Duration
	MaxWindowDays int
}

// Storage talks to the rates table through a PostgREST gateway.
type Storage struct {
	client        *http.Client
	baseURL       string
	table         string
	timeout       time.Duration
	maxWindowDays int
}

func NewStorage(client *http.Client, opts Options) *Storage {
	if client == nil {
		client = &http.Client{}
	}

	return &Storage{
		client:        client,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		table:         opts.Table,
		timeout:       opts.Timeout,
		maxWindowDays: opts.MaxWindowDays,
	}
}

// Upsert writes quotes with merge-duplicates on (date, currency). Re-sending
// identical rows leaves the table unchanged.
func (s *Storage) Upsert(ctx context.Context, quotes []entities.RateQuote) (int, error) {
	const op = "storage.postgrest.Upsert"

	if len(quotes) == 0 {
		return 0, nil
	}

	rows := make([]row, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, row{
			Date:     q.DateString(),
			Currency: q.Currency.String(),
			BuyRate:  q.BuyRate,
			SellRate: q.SellRate,
			BaseRate: q.BaseRate,
		})
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return 0, errors.Wrap(err, op)
	}

	q := url.Values{}
	q.Set("on_conflict", "date,currency")
	q.Set("columns", "date,currency,buy_rate,sell_rate,base_rate")

	var written []row
	err = s.do(ctx, http.MethodPost, q, body, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=representation",
	}, &written)
	if err != nil {
		return 0, errors.Wrap(err, op)
	}

	return len(written), nil
}

// ReadWindow returns the rows of the days most recent distinct dates, newest
// first and in insertion order within a date.
func (s *Storage) ReadWindow(ctx context.Context, days int) ([]entities.RateQuote, error) {
	const op = "storage.postgrest.ReadWindow"

	if err := entities.ValidateWindow(days, s.maxWindowDays); err != nil {
		return nil, errors.Wrap(err, op)
	}

	dq := url.Values{}
	dq.Set("select", "date")
	dq.Set("order", "date.desc")
	// At most one row per supported currency per date.
	dq.Set("limit", strconv.Itoa(days*len(entities.Currencies)))

	var dateRows []struct {
		Date string `json:"date"`
	}
	if err := s.do(ctx, http.MethodGet, dq, nil, nil, &dateRows); err != nil {
		return nil, errors.Wrap(err, op)
	}

	dates := make([]string, 0, days)
	for _, r := range dateRows {
		if len(dates) > 0 && dates[len(dates)-1] == r.Date {
			continue
		}
		if len(dates) == days {
			break
		}
		dates = append(dates, r.Date)
	}

	if len(dates) == 0 {
		return []entities.RateQuote{}, nil
	}

	rq := url.Values{}
	rq.Set("select", rowColumns)
	rq.Set("date", fmt.Sprintf("in.(%s)", strings.Join(dates, ",")))
	rq.Set("order", "date.desc,id.asc")

	var rows []row
	if err := s.do(ctx, http.MethodGet, rq, nil, nil, &rows); err != nil {
		return nil, errors.Wrap(err, op)
	}

	quotes := make([]entities.RateQuote, 0, len(rows))
	for _, r := range rows {
		q, err := toQuote(r)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		quotes = append(quotes, *q)
	}

	return quotes, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.postgrest.Ping"

	q := url.Values{}
	q.Set("select", "date")
	q.Set("limit", "1")

	var rows []json.RawMessage
	if err := s.do(ctx, http.MethodGet, q, nil, nil, &rows); err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}

func (s *Storage) do(ctx context.Context, method string, query url.Values, body []byte, headers map[string]string, dst any) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	endpoint := s.baseURL + "/" + s.table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return errors.Wrapf(entities.ErrGatewayUnavailable, "%s %s: %v", method, s.table, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.Wrapf(entities.ErrGatewayUnavailable, "read body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return errors.Wrapf(entities.ErrConflict, "%s", snippet(payload))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Wrapf(entities.ErrGatewayUnavailable, "status %d: %s", resp.StatusCode, snippet(payload))
	}

	if dst == nil || len(payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return errors.Wrapf(entities.ErrGatewayUnavailable, "decode response: %v", err)
	}

	return nil
}

func toQuote(r row) (*entities.RateQuote, error) {
	date, err := entities.ParseDate(r.Date)
	if err != nil {
		return nil, err
	}

	return entities.NewRateQuote(entities.Currency(r.Currency), date, r.BuyRate, r.SellRate, r.BaseRate)
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}

	return string(b)
}

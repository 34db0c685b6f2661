package koreaexim

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	dataCode     = "AP01"
	searchLayout = "20060102"

	ResultOK           = 1
	ResultBadDataCode  = 2
	ResultBadAuthKey   = 3
	ResultQuotaReached = 4
)

// Record is one row of the AP01 daily rate table. Numeric fields arrive as
// strings with thousands separators.
type Record struct {
	Result   int    `json:"result"`
	CurUnit  string `json:"cur_unit"`
	CurName  string `json:"cur_nm"`
	TTB      string `json:"ttb"`
	TTS      string `json:"tts"`
	DealBasR string `json:"deal_bas_r"`
}

type Options struct {
	URL                string
	AuthKey            string
	Timeout            time.Duration
	Location           *time.Location
	InsecureSkipVerify bool
}

type HTTPClient struct {
	client   *http.Client
	baseURL  string
	authKey  string
	location *time.Location
	now      func() time.Time
}

func NewHTTPClient(opts Options) *HTTPClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	return &HTTPClient{
		client:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		baseURL:  opts.URL,
		authKey:  opts.AuthKey,
		location: loc,
		now:      time.Now,
	}
}

// FetchRates requests the rate table published for date. It performs exactly
// one call and never retries.
func (c *HTTPClient) FetchRates(ctx context.Context, date time.Time) ([]Record, error) {
	const op = "koreaexim.FetchRates"

	day := entities.TruncateDate(date)
	if day.After(entities.TruncateDate(c.now().In(c.location))) {
		return nil, errors.Wrapf(entities.ErrInvalidDate, "%s: %s is in the future", op, day.Format(entities.DateLayout))
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	q := u.Query()
	q.Set("authkey", c.authKey)
	q.Set("searchdate", day.Format(searchLayout))
	q.Set("data", dataCode)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrUpstreamUnavailable, "%s: %v", op, transportCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(entities.ErrUpstreamUnavailable, "%s: bad status %s", op, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrUpstreamUnavailable, "%s: read body: %v", op, err)
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, errors.Wrapf(entities.ErrUpstreamMalformed, "%s: %v", op, err)
	}

	if len(records) == 0 {
		return nil, errors.Wrapf(entities.ErrNoDataForDate, "%s: %s", op, day.Format(entities.DateLayout))
	}

	for _, r := range records {
		if err := checkResult(r.Result); err != nil {
			return nil, errors.Wrap(err, op)
		}
	}

	slog.Debug("rates fetched", "op", op, "date", day.Format(entities.DateLayout), "records", len(records))

	return records, nil
}

// transportCause drops the *url.Error wrapper, whose text carries the request
// URL and with it the auth key.
func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}

	return err
}

func checkResult(code int) error {
	switch code {
	case 0, ResultOK:
		return nil
	case ResultBadDataCode:
		return errors.Wrap(entities.ErrUpstreamUnavailable, "provider rejected data code")
	case ResultBadAuthKey:
		return errors.Wrap(entities.ErrUpstreamUnavailable, "provider rejected auth key")
	case ResultQuotaReached:
		return errors.Wrap(entities.ErrUpstreamUnavailable, "provider daily quota exceeded")
	default:
		return errors.Wrap(entities.ErrUpstreamMalformed, fmt.Sprintf("unknown result code %d", code))
	}
}

package trigger

import (
	"bytes"
	"context"
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

// ErrRejected is returned when the ingest endpoint answers with a status that
// is not worth retrying.
var ErrRejected = errors.New("ingest request rejected")

const defaultCatchUpDays = 100

type Options struct {
	TargetURL string
	// ReadURL is the rates read endpoint used to find the latest stored date.
	// Empty disables catch-up.
	ReadURL     string
	CatchUpDays int
	Location    *time.Location
	Hour        int
	Minute      int
	Timeout     time.Duration
	Retry       RetryConfig
}

// Trigger calls the ingest endpoint once a day at a fixed wall-clock time.
type Trigger struct {
	client      *http.Client
	targetURL   string
	readURL     string
	catchUpDays int
	location    *time.Location
	hour        int
	minute      int
	retry       RetryConfig
	now         func() time.Time
}

type Result struct {
	Date     string `json:"date"`
	Inserted int    `json:"inserted"`
	NoData   bool   `json:"-"`
}

func New(opts Options) *Trigger {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	catchUpDays := opts.CatchUpDays
	if catchUpDays <= 0 {
		catchUpDays = defaultCatchUpDays
	}

	return &Trigger{
		client:      &http.Client{Timeout: opts.Timeout},
		targetURL:   opts.TargetURL,
		readURL:     opts.ReadURL,
		catchUpDays: catchUpDays,
		location:    loc,
		hour:        opts.Hour,
		minute:      opts.Minute,
		retry:       opts.Retry,
		now:         time.Now,
	}
}

// NextRun is the first scheduled time strictly after from.
func (t *Trigger) NextRun(from time.Time) time.Time {
	local := from.In(t.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), t.hour, t.minute, 0, 0, t.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// Run fires at every scheduled time until ctx is cancelled. runNow fires once
// immediately before the first wait.
func (t *Trigger) Run(ctx context.Context, runNow bool) {
	if runNow {
		t.fireLogged(ctx)
	}

	for {
		next := t.NextRun(t.now())
		slog.Info("Next ingest scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Trigger stopped")
			return
		case <-timer.C:
		}

		t.fireLogged(ctx)
	}
}

func (t *Trigger) fireLogged(ctx context.Context) {
	results, err := t.CatchUp(ctx, t.now())
	for _, res := range results {
		if res.NoData {
			slog.Info("No rates published for date", "date", res.Date)
			continue
		}
		slog.Info("Scheduled ingest finished", "date", res.Date, "inserted", res.Inserted)
	}
	if err != nil {
		slog.Error("Scheduled ingest failed", "error", err)
	}
}

// CatchUp ingests every weekday after the latest stored date through the
// business date of at, looking back at most CatchUpDays. A failed date does
// not stop the dates after it. Without a read URL only at's date is requested.
func (t *Trigger) CatchUp(ctx context.Context, at time.Time) ([]Result, error) {
	const op = "trigger.CatchUp"

	if t.readURL == "" {
		res, err := t.Fire(ctx, at)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		return []Result{*res}, nil
	}

	today := entities.TruncateDate(at.In(t.location))

	latest, err := t.latestDate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if floor := today.AddDate(0, 0, -t.catchUpDays); latest.Before(floor) {
		latest = floor
	}

	days := businessDays(latest, today)
	if len(days) > 1 {
		slog.Info("Catching up missed dates",
			"from", days[0].Format(entities.DateLayout),
			"to", days[len(days)-1].Format(entities.DateLayout),
			"dates", len(days),
		)
	}

	var (
		results  []Result
		failed   int
		firstErr error
	)
	for _, day := range days {
		res, err := t.fireDate(ctx, day.Format(entities.DateLayout))
		if err != nil {
			if ctx.Err() != nil {
				return results, errors.Wrap(ctx.Err(), op)
			}
			slog.Error("Ingest failed for date", "date", day.Format(entities.DateLayout), "error", err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, *res)
	}

	if failed > 0 {
		return results, errors.Wrapf(firstErr, "%s: %d of %d dates failed", op, failed, len(days))
	}

	return results, nil
}

// Fire requests ingestion for the business date of at. Only upstream outages
// and network errors are retried.
func (t *Trigger) Fire(ctx context.Context, at time.Time) (*Result, error) {
	return t.fireDate(ctx, at.In(t.location).Format(entities.DateLayout))
}

func (t *Trigger) fireDate(ctx context.Context, date string) (*Result, error) {
	const op = "trigger.Fire"

	target, err := url.Parse(t.targetURL)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	query := target.Query()
	query.Set("date", date)
	target.RawQuery = query.Encode()

	buildReq := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	}

	resp, err := do(ctx, t.client, t.retry, buildReq, retryUpstream)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		res := &Result{}
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return nil, errors.Wrap(err, op)
		}
		return res, nil
	case http.StatusNoContent:
		return &Result{Date: date, NoData: true}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(ErrRejected, "%s: HTTP %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
	}
}

type windowBody struct {
	Metadata struct {
		LatestDate string `json:"latest_date"`
	} `json:"metadata"`
}

// latestDate reads the newest stored date. An empty store yields the zero time.
func (t *Trigger) latestDate(ctx context.Context) (time.Time, error) {
	const op = "trigger.latestDate"

	target, err := url.Parse(t.readURL)
	if err != nil {
		return time.Time{}, errors.Wrap(err, op)
	}
	query := target.Query()
	query.Set("days", "1")
	query.Set("format", "web")
	target.RawQuery = query.Encode()

	buildReq := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	}

	resp, err := do(ctx, t.client, t.retry, buildReq, retryUpstream)
	if err != nil {
		return time.Time{}, errors.Wrap(err, op)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return time.Time{}, errors.Wrapf(ErrRejected, "%s: HTTP %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
	}

	var wb windowBody
	if err := json.NewDecoder(resp.Body).Decode(&wb); err != nil {
		return time.Time{}, errors.Wrap(err, op)
	}
	if wb.Metadata.LatestDate == "" {
		return time.Time{}, nil
	}

	latest, err := entities.ParseDate(wb.Metadata.LatestDate)
	if err != nil {
		return time.Time{}, errors.Wrap(err, op)
	}

	return latest, nil
}

// businessDays lists the weekdays in (after, through].
func businessDays(after, through time.Time) []time.Time {
	var days []time.Time
	for d := after.AddDate(0, 0, 1); !d.After(through); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}

	return days
}

type errorBody struct {
	Error struct {
		Kind    entities.Kind `json:"kind"`
		Message string        `json:"message"`
	} `json:"error"`
}

// retryUpstream retries network errors and 502 responses whose kind says the
// provider itself was down. A gateway or storage failure is not retried.
func retryUpstream(resp *http.Response, err error) (bool, error) {
	if err != nil {
		return true, err
	}
	if resp.StatusCode != http.StatusBadGateway {
		return false, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Kind == entities.KindUpstreamUnavailable {
		return true, fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, eb.Error.Kind, eb.Error.Message)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))

	return false, nil
}

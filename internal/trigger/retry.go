package trigger

import (
	"context"
	"github.com/pkg/errors"
	"log/slog"
	"net/http"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetry = RetryConfig{
	MaxAttempts: 5,
	BaseDelay:   30 * time.Second,
	MaxDelay:    10 * time.Minute,
}

// retryable reports whether a finished attempt should be repeated. A nil resp
// means the request never got an answer.
type retryable func(resp *http.Response, err error) (bool, error)

// do executes the request with exponential backoff while shouldRetry allows it.
// buildReq is called per attempt so each one gets a fresh request.
func do(ctx context.Context, client *http.Client, cfg RetryConfig, buildReq func() (*http.Request, error), shouldRetry retryable) (*http.Response, error) {
	const op = "trigger.do"

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetry.MaxAttempts
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		req, err := buildReq()
		if err != nil {
			return nil, errors.Wrap(err, op)
		}

		resp, err := client.Do(req)
		retry, cause := shouldRetry(resp, err)
		if !retry {
			return resp, err
		}
		lastErr = cause

		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("Ingest attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), op)
		case <-time.After(delay):
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return nil, errors.Wrapf(lastErr, "%s: all %d attempts failed", op, cfg.MaxAttempts)
}

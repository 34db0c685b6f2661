package service

import (
	"context"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/api_client/koreaexim"
	"time"
)

type RateClient interface {
	FetchRates(ctx context.Context, date time.Time) ([]koreaexim.Record, error)
}

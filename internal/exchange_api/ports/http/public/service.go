package public

import (
	"context"
	"github.com/langowen/exchange-rates/internal/exchange_api/formatter"
	"time"
)

type Service interface {
	Ingest(ctx context.Context, date time.Time) (int, error)
	Rates(ctx context.Context, days int, shape formatter.Shape) (*formatter.Output, error)
	Health(ctx context.Context) error
	LatestDate(ctx context.Context) (string, error)
	Today() time.Time
	MaxWindowDays() int
}

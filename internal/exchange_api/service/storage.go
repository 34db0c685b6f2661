package service

import (
	"context"
	"github.com/langowen/exchange-rates/internal/entities"
)

type Storage interface {
	Upsert(ctx context.Context, quotes []entities.RateQuote) (int, error)
	ReadWindow(ctx context.Context, days int) ([]entities.RateQuote, error)
	Ping(ctx context.Context) error
}

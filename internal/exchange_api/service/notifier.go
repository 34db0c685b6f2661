package service

import (
	"context"
	"github.com/langowen/exchange-rates/internal/entities"
)

type Notifier interface {
	Publish(ctx context.Context, event entities.RatesIngested) error
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, entities.RatesIngested) error { return nil }

package redis

import (
	"context"
	"encoding/json"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

const DefaultChannel = "rates_updated"

// Notifier announces completed ingestions on a pub/sub channel.
type Notifier struct {
	rdb     redis.UniversalClient
	channel string
}

func NewNotifier(client redis.UniversalClient, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}

	return &Notifier{
		rdb:     client,
		channel: channel,
	}
}

func InitNotifier(ctx context.Context, options *redis.Options, channel string) (*Notifier, error) {
	const op = "notify.redis.InitNotifier"

	redisClient := redis.NewClient(options)

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		_ = redisClient.Close()
		return nil, errors.Wrap(err, op)
	}

	return NewNotifier(redisClient, channel), nil
}

func (n *Notifier) Publish(ctx context.Context, event entities.RatesIngested) error {
	const op = "notify.redis.Publish"

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, op)
	}

	receivers, err := n.rdb.Publish(ctx, n.channel, payload).Result()
	if err != nil {
		return errors.Wrap(err, op)
	}

	slog.Debug("Published rates update", "channel", n.channel, "date", event.Date, "receivers", receivers)

	return nil
}

// Subscribe delivers events until ctx is done. Malformed payloads are logged and skipped.
func (n *Notifier) Subscribe(ctx context.Context, handle func(entities.RatesIngested)) error {
	const op = "notify.redis.Subscribe"

	pubsub := n.rdb.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(err, op)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event entities.RatesIngested
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Error("Bad rates update payload", "op", op, "error", err)
				continue
			}
			handle(event)
		}
	}
}

func (n *Notifier) Close() error {
	return n.rdb.Close()
}

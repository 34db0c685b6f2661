package kafka

import (
	"context"
	"encoding/json"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"time"
)

const DefaultTopic = "rates.ingested"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per ingestion, keyed by business date.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, event entities.RatesIngested) error {
	const op = "notify.kafka.Publish"

	msg, err := buildMessage(event)
	if err != nil {
		return errors.Wrap(err, op)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func buildMessage(event entities.RatesIngested) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(event.Date),
		Value: value,
		Time:  event.IngestedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}, nil
}

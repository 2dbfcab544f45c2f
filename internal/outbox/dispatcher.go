package outbox

import (
	"context"

	"marketplace/internal/domain/model"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher は outbox の1件を kafka のメッセージにして送る。
type Dispatcher struct {
	log      zerolog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log zerolog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev model.OutboxEvent) error {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(ev.Type)},
		{Key: "aggregate_type", Value: []byte(ev.AggregateType)},
	}
	if ev.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(ev.Traceparent)})
	}

	// 同じ注文のイベントは同じパーティションへ
	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(ev.AggregateID),
		Value:   ev.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error().Err(err).Int64("event_id", ev.ID).Str("type", ev.Type).Msg("outbox dispatch failed")
		return err
	}
	d.log.Info().Int64("event_id", ev.ID).Str("type", ev.Type).Msg("outbox dispatched")
	return nil
}

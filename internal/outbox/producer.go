package outbox

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// kafkaが無い環境（開発・memoryモード）ではログに出すだけ
type LogProducer struct {
	log zerolog.Logger
}

func NewLogProducer(log zerolog.Logger) *LogProducer {
	return &LogProducer{log: log}
}

func (p *LogProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		ev := p.log.Info().Str("topic", m.Topic).Bytes("key", m.Key).RawJSON("value", m.Value)
		for _, h := range m.Headers {
			ev = ev.Bytes(h.Key, h.Value)
		}
		ev.Msg("outbox event")
	}
	return nil
}

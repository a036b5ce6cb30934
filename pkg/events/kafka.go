package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes events to a Kafka topic. Writes are asynchronous so a
// slow broker cannot stall a ledger operation; delivery failures are logged
// and dropped, consistent with events being observability hooks only.
type KafkaSink struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, log zerolog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 250 * time.Millisecond,
	}
	return &KafkaSink{writer: w, log: log.With().Str("component", "kafka-sink").Logger()}
}

func (s *KafkaSink) Publish(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("marshal event")
		return
	}
	err = s.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(e.Kind),
		Value: b,
	})
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("publish event")
	}
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

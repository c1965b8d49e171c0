package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const eventTypeSync = "telemetry.sync"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces sync events to a Kafka topic.
// It implements domain.SyncEventPublisher. A nil *Publisher discards events.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the sync events topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSyncEvent writes one event keyed by batch index so that events for a
// batch land on the same partition in order.
func (p *Publisher) PublishSyncEvent(ctx context.Context, event domain.SyncEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sync event for batch %02d: %w", event.BatchIndex, err)
	}
	p.logger.Debug("sync event published", "batch", event.BatchIndex, "success", event.Success)
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// serializeToMessage marshals a SyncEvent into a Kafka message.
func serializeToMessage(event domain.SyncEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sync event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("batch-%02d", event.BatchIndex)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventTypeSync)},
			{Key: "success", Value: []byte(strconv.FormatBool(event.Success))},
			{Key: "completed_at", Value: []byte(event.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}

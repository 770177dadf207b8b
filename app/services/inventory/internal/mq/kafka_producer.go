package mq

import (
	"context"
	"encoding/json"
	"time"

	"Holdfast/app/services/inventory/internal/domain"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds the shared writer for the event topic. It returns nil
// when Kafka is not configured.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           5 * time.Millisecond,
	}
}

// EventPublisher sends reservation events keyed by sub sku so every sku keeps
// its order within a partition.
type EventPublisher struct {
	w       MessageWriter
	timeout time.Duration
}

func NewEventPublisher(w MessageWriter) *EventPublisher {
	return &EventPublisher{w: w, timeout: 3 * time.Second}
}

func (p *EventPublisher) Publish(ctx context.Context, events ...domain.ReservationEvent) error {
	if p == nil || p.w == nil || len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		body, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.SubSku),
			Value: body,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
			},
		})
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.w.WriteMessages(ctx, msgs...)
}

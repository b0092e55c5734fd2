// Package stream forwards persisted audit entries to a Kafka topic for
// downstream compliance tooling.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"taskhub/internal/audit/models"
	"taskhub/internal/platform/kafka/producer"
)

// Producer is satisfied by *producer.Producer.
type Producer interface {
	ProduceAsync(ctx context.Context, msg *producer.Message) error
}

// Forwarder publishes entries keyed by tenant so one tenant's entries keep
// their order within a partition.
type Forwarder struct {
	producer Producer
	topic    string
}

func NewForwarder(p Producer, topic string) *Forwarder {
	return &Forwarder{producer: p, topic: topic}
}

func (f *Forwarder) Forward(ctx context.Context, entry models.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	key := "platform"
	if entry.TenantID != nil {
		key = entry.TenantID.String()
	}
	return f.producer.ProduceAsync(ctx, &producer.Message{
		Topic: f.topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"action":   string(entry.Action),
			"entry_id": entry.ID.String(),
		},
	})
}

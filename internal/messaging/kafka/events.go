package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// TopicLedgerEvents topic по умолчанию для событий ledger.
const TopicLedgerEvents = "ledger.events"

// Заголовки, по которым consumers маршрутизируют события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderEventID       = "x-event-id"
)

// Envelope тело сообщения в topic: метаданные outbox и исходный payload.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// ParseEnvelope разбирает сообщение из topic ledger.
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger envelope: %w", err)
	}
	return &envelope, nil
}

func envelopeHeaders(envelope Envelope) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(envelope.EventType)},
		{Key: []byte(HeaderAggregateType), Value: []byte(envelope.AggregateType)},
		{Key: []byte(HeaderEventID), Value: []byte(envelope.ID)},
	}
}

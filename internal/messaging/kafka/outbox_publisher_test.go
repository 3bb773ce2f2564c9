package kafka

import (
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	occurred := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicLedgerEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return fmt.Errorf("unexpected key %s", key)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderEventType] != "order.completed" || headers[HeaderEventID] != "outbox-1" {
			return fmt.Errorf("unexpected headers %v", headers)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		envelope, err := ParseEnvelope(&sarama.ConsumerMessage{Value: value})
		if err != nil {
			return err
		}
		if envelope.AggregateType != "order" || !envelope.OccurredAt.Equal(occurred) {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if string(envelope.Payload) != `{"order_number":"S00001"}` {
			return fmt.Errorf("unexpected payload %s", envelope.Payload)
		}
		return nil
	})

	producer := newProducer(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "order.completed",
		Payload:       []byte(`{"order_number":"S00001"}`),
		CreatedAt:     occurred,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), TopicLedgerEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "shift",
		AggregateID:   "shift-1",
		EventType:     "shift.closed",
		Payload:       []byte(`{"total_amount":"100"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicLedgerEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

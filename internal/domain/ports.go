package domain

import (
	"context"
	"time"
)

// BatchRepository хранилище партий.
type BatchRepository = Collection[Batch]

// OrderRepository хранилище заказов. Номер заказа уникален: Create и Update
// возвращают ErrDuplicate при совпадении.
type OrderRepository = Collection[Order]

// ShiftRepository хранилище смен.
type ShiftRepository = Collection[Shift]

// WriteOffRepository хранилище списаний.
type WriteOffRepository = Collection[WriteOff]

// LocationDirectory отдаёт точку продаж, к которой привязан сотрудник.
type LocationDirectory interface {
	LocationOf(ctx context.Context, userID string) (Location, error)
}

// AuditRepository журнал административных действий.
type AuditRepository interface {
	Append(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, aggregateID string) ([]AuditEvent, error)
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPurger удаляет опубликованные события старше before, не больше limit за вызов.
type OutboxPurger interface {
	DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

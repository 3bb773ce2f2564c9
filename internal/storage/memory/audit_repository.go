package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

type auditRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.AuditEvent
}

// NewAuditRepository создаёт in-memory журнал административных действий.
func NewAuditRepository() domain.AuditRepository {
	return &auditRepositoryInMemory{events: make(map[string][]domain.AuditEvent)}
}

func (r *auditRepositoryInMemory) Append(_ context.Context, event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	events := append(r.events[event.AggregateID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.events[event.AggregateID] = events
	return nil
}

// List возвращает события агрегата в хронологическом порядке.
func (r *auditRepositoryInMemory) List(_ context.Context, aggregateID string) ([]domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[aggregateID]
	result := make([]domain.AuditEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.AuditRepository = (*auditRepositoryInMemory)(nil)

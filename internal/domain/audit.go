package domain

import "time"

// AuditEvent запись журнала административных действий: возвраты, удаления,
// принудительное закрытие и правки смен.
type AuditEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	Type          string
	Actor         string
	Reason        string
	Occurred      time.Time
}

const (
	AggregateOrder = "order"
	AggregateShift = "shift"
	AggregateBatch = "batch"
)

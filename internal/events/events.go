// Package events складывает доменные события в outbox и пишет журнал
// административных действий.
package events

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/metrics"
)

// Type тип доменного события.
type Type string

const (
	OrderCompleted Type = "order.completed"
	OrderRefunded  Type = "order.refunded"
	OrderDeleted   Type = "order.deleted"

	// OrderRefundCreditFailed порции возврата, которые не удалось зачислить:
	// остаток по ним правится вручную.
	OrderRefundCreditFailed Type = "order.refund_credit_failed"

	ShiftStarted Type = "shift.started"
	ShiftClosed  Type = "shift.closed"
	ShiftEdited  Type = "shift.edited"

	StockReceived   Type = "stock.received"
	StockWrittenOff Type = "stock.written_off"
)

// Emitter пишет события в outbox и audit. Нулевой *Emitter ничего не делает.
type Emitter struct {
	outbox  domain.OutboxRepository
	audit   domain.AuditRepository
	logger  *log.Entry
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// Option настраивает Emitter.
type Option func(*Emitter)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics включает счётчик событий outbox.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEmitter создаёт Emitter. Любое из хранилищ может быть nil.
func NewEmitter(outbox domain.OutboxRepository, audit domain.AuditRepository, opts ...Option) *Emitter {
	e := &Emitter{
		outbox: outbox,
		audit:  audit,
		logger: log.WithField("component", "events"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit сериализует payload и ставит событие в outbox. Ошибки логируются:
// операция, породившая событие, уже выполнена.
func (e *Emitter) Emit(ctx context.Context, aggregateType, aggregateID string, eventType Type, payload map[string]any) {
	if e == nil || e.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload[aggregateType+"_id"] = aggregateID
	payload["occurred_at"] = e.now().Format(time.RFC3339Nano)

	fields := log.Fields{
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event":          eventType,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
		CreatedAt:     e.now(),
	}
	if _, err := e.outbox.Enqueue(context.WithoutCancel(ctx), msg); err != nil {
		e.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		return
	}
	e.metrics.RecordOutboxEvent()
}

// Audit добавляет запись в журнал действий. Пустое время заполняется текущим.
func (e *Emitter) Audit(ctx context.Context, event domain.AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Occurred.IsZero() {
		event.Occurred = e.now()
	}
	if err := e.audit.Append(context.WithoutCancel(ctx), event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"type":           event.Type,
		}).Error("append audit event failed")
	}
}

// History журнал действий по агрегату.
func (e *Emitter) History(ctx context.Context, aggregateID string) ([]domain.AuditEvent, error) {
	if e == nil || e.audit == nil {
		return nil, nil
	}
	return e.audit.List(ctx, aggregateID)
}

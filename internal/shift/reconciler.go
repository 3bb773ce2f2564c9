// Package shift открывает, закрывает и сверяет смены сотрудников.
//
// Итоги смены не ведутся инкрементально: при закрытии они пересчитываются
// заново по всем заказам сотрудника за окно смены.
package shift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
	"github.com/alcosklad/alcoapp-sub000/internal/metrics"
)

const (
	closedByWorker = "worker"
	closedByAdmin  = "admin"
)

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics включает метрики смен.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithEvents включает outbox-события и журнал действий.
func WithEvents(emitter *events.Emitter) Option {
	return func(r *Reconciler) {
		r.events = emitter
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler управляет жизненным циклом смен.
type Reconciler struct {
	shifts  domain.ShiftRepository
	orders  domain.OrderRepository
	locker  lock.Locker
	events  *events.Emitter
	logger  *log.Entry
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// NewReconciler создаёт Reconciler.
func NewReconciler(shifts domain.ShiftRepository, orders domain.OrderRepository, locker lock.Locker, opts ...Option) *Reconciler {
	r := &Reconciler{
		shifts: shifts,
		orders: orders,
		locker: locker,
		logger: log.WithField("component", "shift"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start открывает смену. Если у сотрудника уже есть активная смена,
// возвращает *domain.AlreadyActiveShiftError с её ID.
func (r *Reconciler) Start(ctx context.Context, userID, locationID string, start time.Time) (domain.Shift, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Shift{}, domain.ErrUserRequired
	}
	if start.IsZero() {
		start = r.now()
	}

	unlock, err := r.locker.Lock(ctx, lock.ShiftKey(userID))
	if err != nil {
		return domain.Shift{}, fmt.Errorf("lock shift %s: %w", userID, err)
	}
	defer unlock()

	return r.start(ctx, userID, locationID, start)
}

func (r *Reconciler) start(ctx context.Context, userID, locationID string, start time.Time) (domain.Shift, error) {
	active, err := r.Active(ctx, userID)
	switch {
	case err == nil:
		return domain.Shift{}, &domain.AlreadyActiveShiftError{UserID: userID, ShiftID: active.ID}
	case !errors.Is(err, domain.ErrNoActiveShift):
		return domain.Shift{}, err
	}

	created, err := r.shifts.Create(ctx, domain.Shift{
		UserID:      userID,
		LocationID:  locationID,
		Start:       start,
		Status:      domain.ShiftStatusActive,
		TotalAmount: decimal.Zero,
	})
	if err != nil {
		// Уникальный индекс хранилища сработал раньше блокировки другого узла.
		if errors.Is(err, domain.ErrDuplicate) {
			if active, activeErr := r.Active(ctx, userID); activeErr == nil {
				return domain.Shift{}, &domain.AlreadyActiveShiftError{UserID: userID, ShiftID: active.ID}
			}
		}
		return domain.Shift{}, fmt.Errorf("create shift: %w", err)
	}

	r.metrics.RecordShiftStarted()
	r.events.Emit(ctx, domain.AggregateShift, created.ID, events.ShiftStarted, map[string]any{
		"user_id":     userID,
		"location_id": locationID,
		"start":       start.Format(time.RFC3339Nano),
	})
	r.logger.WithFields(log.Fields{
		"shift_id": created.ID,
		"user_id":  userID,
	}).Info("shift started")
	return created, nil
}

// EnsureActive возвращает активную смену сотрудника, открывая её при
// необходимости. started сообщает, была ли смена открыта этим вызовом.
func (r *Reconciler) EnsureActive(ctx context.Context, userID, locationID string, at time.Time) (shift domain.Shift, started bool, err error) {
	if active, err := r.Active(ctx, userID); err == nil {
		return active, false, nil
	}

	created, err := r.Start(ctx, userID, locationID, at)
	var already *domain.AlreadyActiveShiftError
	if errors.As(err, &already) {
		existing, getErr := r.Get(ctx, already.ShiftID)
		if getErr != nil {
			return domain.Shift{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.Shift{}, false, err
	}
	return created, true, nil
}

// Active возвращает открытую смену сотрудника или domain.ErrNoActiveShift.
func (r *Reconciler) Active(ctx context.Context, userID string) (domain.Shift, error) {
	shifts, err := r.shifts.List(ctx, domain.Where(
		domain.Eq(domain.FieldUserID, userID),
		domain.Eq(domain.FieldStatus, domain.ShiftStatusActive),
	).OrderBy(domain.Desc(domain.FieldStart)).WithLimit(1))
	if err != nil {
		return domain.Shift{}, fmt.Errorf("find active shift: %w", err)
	}
	if len(shifts) == 0 {
		return domain.Shift{}, fmt.Errorf("user %s: %w", userID, domain.ErrNoActiveShift)
	}
	return shifts[0], nil
}

// Get возвращает смену по ID.
func (r *Reconciler) Get(ctx context.Context, shiftID string) (domain.Shift, error) {
	return r.shifts.Get(ctx, shiftID)
}

// List смены сотрудника, последние первыми.
func (r *Reconciler) List(ctx context.Context, userID string, limit int) ([]domain.Shift, error) {
	return r.shifts.List(ctx, domain.Where(
		domain.Eq(domain.FieldUserID, userID),
	).OrderBy(domain.Desc(domain.FieldStart)).WithLimit(limit))
}

// Close закрывает смену сотрудником и фиксирует пересчитанные итоги.
// Повторное закрытие возвращает domain.ErrShiftAlreadyClosed.
func (r *Reconciler) Close(ctx context.Context, shiftID string, end time.Time) (domain.Shift, error) {
	return r.close(ctx, shiftID, end, "")
}

// ForceClose закрывает смену администратором. Действие попадает в журнал.
func (r *Reconciler) ForceClose(ctx context.Context, shiftID string, end time.Time, adminID string) (domain.Shift, error) {
	if strings.TrimSpace(adminID) == "" {
		return domain.Shift{}, domain.ErrUserRequired
	}
	return r.close(ctx, shiftID, end, adminID)
}

func (r *Reconciler) close(ctx context.Context, shiftID string, end time.Time, adminID string) (domain.Shift, error) {
	current, err := r.shifts.Get(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}

	unlock, err := r.locker.Lock(ctx, lock.ShiftKey(current.UserID))
	if err != nil {
		return domain.Shift{}, fmt.Errorf("lock shift %s: %w", current.UserID, err)
	}
	defer unlock()

	current, err = r.shifts.Get(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if !current.IsActive() {
		return domain.Shift{}, fmt.Errorf("shift %s: %w", shiftID, domain.ErrShiftAlreadyClosed)
	}
	if end.IsZero() {
		end = r.now()
	}
	if end.Before(current.Start) {
		return domain.Shift{}, domain.ErrInvalidTimeRange
	}

	summary, err := r.summarizeWindow(ctx, current.UserID, current.Start, end)
	if err != nil {
		return domain.Shift{}, err
	}

	current.End = &end
	current.Status = domain.ShiftStatusClosed
	current.TotalAmount = summary.TotalAmount
	current.TotalItems = summary.TotalItems
	current.Sales = summary.Sales
	current.ClosedBy = adminID

	closed, err := r.shifts.Update(ctx, current)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("close shift %s: %w", shiftID, err)
	}

	by := closedByWorker
	if adminID != "" {
		by = closedByAdmin
		r.events.Audit(ctx, domain.AuditEvent{
			AggregateType: domain.AggregateShift,
			AggregateID:   closed.ID,
			Type:          "shift.force_closed",
			Actor:         adminID,
		})
	}
	r.metrics.RecordShiftClosed(by)
	r.events.Emit(ctx, domain.AggregateShift, closed.ID, events.ShiftClosed, map[string]any{
		"user_id":      closed.UserID,
		"total_amount": closed.TotalAmount.String(),
		"total_items":  closed.TotalItems,
		"closed_by":    by,
	})
	r.logger.WithFields(log.Fields{
		"shift_id":     closed.ID,
		"user_id":      closed.UserID,
		"total_amount": closed.TotalAmount.String(),
		"total_items":  closed.TotalItems,
		"closed_by":    by,
	}).Info("shift closed")
	return closed, nil
}

// Preview считает текущие итоги смены без закрытия. Для закрытой смены
// окно ограничено её концом.
func (r *Reconciler) Preview(ctx context.Context, shiftID string, at time.Time) (domain.ShiftSummary, error) {
	current, err := r.shifts.Get(ctx, shiftID)
	if err != nil {
		return domain.ShiftSummary{}, err
	}
	end := at
	if end.IsZero() {
		end = r.now()
	}
	if current.End != nil {
		end = *current.End
	}
	return r.summarizeWindow(ctx, current.UserID, current.Start, end)
}

// Edit исправляет закрытую смену. Правка помечается EditedAt/EditedBy и
// попадает в журнал действий.
func (r *Reconciler) Edit(ctx context.Context, shiftID string, edit domain.ShiftEdit, editorID string) (domain.Shift, error) {
	if strings.TrimSpace(editorID) == "" {
		return domain.Shift{}, domain.ErrUserRequired
	}
	if edit.Empty() {
		return domain.Shift{}, fmt.Errorf("%w: no changes", domain.ErrInvalidShiftEdit)
	}
	if edit.TotalAmount != nil && edit.TotalAmount.IsNegative() {
		return domain.Shift{}, fmt.Errorf("%w: total amount must be non-negative", domain.ErrInvalidShiftEdit)
	}
	if edit.TotalItems != nil && *edit.TotalItems < 0 {
		return domain.Shift{}, domain.ErrInvalidQuantity
	}

	current, err := r.shifts.Get(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}

	unlock, err := r.locker.Lock(ctx, lock.ShiftKey(current.UserID))
	if err != nil {
		return domain.Shift{}, fmt.Errorf("lock shift %s: %w", current.UserID, err)
	}
	defer unlock()

	current, err = r.shifts.Get(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, err
	}
	if current.IsActive() {
		return domain.Shift{}, fmt.Errorf("shift %s: %w", shiftID, domain.ErrShiftNotClosed)
	}

	if edit.Start != nil {
		current.Start = *edit.Start
	}
	if edit.End != nil {
		end := *edit.End
		current.End = &end
	}
	if current.End != nil && current.End.Before(current.Start) {
		return domain.Shift{}, domain.ErrInvalidTimeRange
	}
	if edit.TotalAmount != nil {
		current.TotalAmount = *edit.TotalAmount
	}
	if edit.TotalItems != nil {
		current.TotalItems = *edit.TotalItems
	}
	editedAt := r.now()
	current.EditedAt = &editedAt
	current.EditedBy = editorID

	edited, err := r.shifts.Update(ctx, current)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("edit shift %s: %w", shiftID, err)
	}

	r.metrics.RecordShiftEdit()
	r.events.Audit(ctx, domain.AuditEvent{
		AggregateType: domain.AggregateShift,
		AggregateID:   edited.ID,
		Type:          string(events.ShiftEdited),
		Actor:         editorID,
		Reason:        edit.Reason,
		Occurred:      editedAt,
	})
	r.events.Emit(ctx, domain.AggregateShift, edited.ID, events.ShiftEdited, map[string]any{
		"edited_by":    editorID,
		"total_amount": edited.TotalAmount.String(),
		"total_items":  edited.TotalItems,
	})
	r.logger.WithFields(log.Fields{
		"shift_id":  edited.ID,
		"edited_by": editorID,
	}).Info("shift edited")
	return edited, nil
}

// History журнал административных действий по смене.
func (r *Reconciler) History(ctx context.Context, shiftID string) ([]domain.AuditEvent, error) {
	return r.events.History(ctx, shiftID)
}

func (r *Reconciler) summarizeWindow(ctx context.Context, userID string, start, end time.Time) (domain.ShiftSummary, error) {
	orders, err := r.orders.List(ctx, domain.Where(
		domain.Eq(domain.FieldUserID, userID),
		domain.Gte(domain.FieldCreatedAt, start),
		domain.Lte(domain.FieldCreatedAt, end),
	).OrderBy(domain.Asc(domain.FieldCreatedAt)))
	if err != nil {
		return domain.ShiftSummary{}, fmt.Errorf("list shift orders: %w", err)
	}
	return Summarize(orders), nil
}

package shift

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
	"github.com/alcosklad/alcoapp-sub000/internal/storage/memory"
)

var shiftStart = time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)

type fixture struct {
	reconciler *Reconciler
	shifts     domain.ShiftRepository
	orders     domain.OrderRepository
	outbox     *memory.OutboxRepository
	audit      domain.AuditRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		shifts: memory.NewShiftRepository(),
		orders: memory.NewOrderRepository(),
		outbox: memory.NewOutboxRepository(),
		audit:  memory.NewAuditRepository(),
	}
	now := func() time.Time { return shiftStart.Add(8 * time.Hour) }
	f.reconciler = NewReconciler(f.shifts, f.orders, lock.NewKeyed(),
		WithClock(now),
		WithEvents(events.NewEmitter(f.outbox, f.audit, events.WithClock(now))),
	)
	return f
}

func (f fixture) order(t *testing.T, number, userID string, total int64, items int, status domain.OrderStatus, at time.Time) {
	t.Helper()
	_, err := f.orders.Create(context.Background(), domain.Order{
		OrderNumber: number,
		UserID:      userID,
		Total:       decimal.NewFromInt(total),
		Items:       []domain.SaleLineItem{{ProductID: "p1", Quantity: items}},
		Status:      status,
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestStart_RejectsSecondActiveShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.reconciler.Start(ctx, "u1", "l1", shiftStart.Add(time.Hour))
	var already *domain.AlreadyActiveShiftError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyActiveShiftError, got %v", err)
	}
	if already.ShiftID != first.ID {
		t.Fatalf("expected existing shift %s, got %s", first.ID, already.ShiftID)
	}
	if !errors.Is(err, domain.ErrShiftAlreadyActive) {
		t.Fatal("typed error must match the sentinel")
	}
}

func TestEnsureActive_ReusesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, started, err := f.reconciler.EnsureActive(ctx, "u1", "l1", shiftStart)
	if err != nil || !started {
		t.Fatalf("expected implicit start, got started=%v err=%v", started, err)
	}

	again, started, err := f.reconciler.EnsureActive(ctx, "u1", "l1", shiftStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if started || again.ID != created.ID {
		t.Fatalf("expected reuse of %s, got %s (started=%v)", created.ID, again.ID, started)
	}
}

func TestClose_ExcludesRefundedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.order(t, "S00001", "u1", 100, 2, domain.OrderStatusCompleted, shiftStart.Add(time.Hour))
	f.order(t, "S00002", "u1", 50, 1, domain.OrderStatusRefund, shiftStart.Add(2*time.Hour))
	f.order(t, "S00003", "u2", 70, 1, domain.OrderStatusCompleted, shiftStart.Add(2*time.Hour))
	f.order(t, "S00004", "u1", 30, 1, domain.OrderStatusCompleted, shiftStart.Add(-time.Hour))

	closed, err := f.reconciler.Close(ctx, s.ID, shiftStart.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if !closed.TotalAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected total 100, got %s", closed.TotalAmount)
	}
	if closed.TotalItems != 2 {
		t.Fatalf("expected 2 items, got %d", closed.TotalItems)
	}
	if len(closed.Sales) != 2 || !closed.Sales[1].Refunded {
		t.Fatalf("refunded sale must be listed and flagged, got %+v", closed.Sales)
	}
	if closed.Status != domain.ShiftStatusClosed || closed.End == nil {
		t.Fatalf("unexpected closed shift %+v", closed)
	}
}

func TestClose_EmptyWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	closed, err := f.reconciler.Close(ctx, s.ID, time.Time{})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.TotalAmount.IsZero() || closed.TotalItems != 0 {
		t.Fatalf("expected zero totals, got %+v", closed)
	}
}

func TestClose_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.reconciler.Close(ctx, s.ID, shiftStart.Add(time.Hour)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.reconciler.Close(ctx, s.ID, shiftStart.Add(2*time.Hour)); !errors.Is(err, domain.ErrShiftAlreadyClosed) {
		t.Fatalf("expected ErrShiftAlreadyClosed, got %v", err)
	}
}

func TestClose_EndBeforeStart(t *testing.T) {
	f := newFixture(t)
	s, err := f.reconciler.Start(context.Background(), "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.reconciler.Close(context.Background(), s.ID, shiftStart.Add(-time.Minute)); !errors.Is(err, domain.ErrInvalidTimeRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestForceClose_RecordsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	closed, err := f.reconciler.ForceClose(ctx, s.ID, time.Time{}, "admin")
	if err != nil {
		t.Fatalf("force close: %v", err)
	}
	if closed.ClosedBy != "admin" {
		t.Fatalf("expected ClosedBy admin, got %q", closed.ClosedBy)
	}

	history, err := f.reconciler.History(ctx, s.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Type != "shift.force_closed" {
		t.Fatalf("expected force close audit, got %+v", history)
	}
}

func TestPreview_DoesNotClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.order(t, "S00001", "u1", 40, 4, domain.OrderStatusCompleted, shiftStart.Add(time.Hour))

	summary, err := f.reconciler.Preview(ctx, s.ID, time.Time{})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !summary.TotalAmount.Equal(decimal.NewFromInt(40)) || summary.TotalItems != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	active, err := f.reconciler.Active(ctx, "u1")
	if err != nil || active.ID != s.ID {
		t.Fatalf("shift must stay active, got %+v %v", active, err)
	}
}

func TestEdit_StampsAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	amount := decimal.NewFromInt(500)
	if _, err := f.reconciler.Edit(ctx, s.ID, domain.ShiftEdit{TotalAmount: &amount}, "admin"); !errors.Is(err, domain.ErrShiftNotClosed) {
		t.Fatalf("expected ErrShiftNotClosed, got %v", err)
	}

	closed, err := f.reconciler.Close(ctx, s.ID, shiftStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.IsEdited() {
		t.Fatal("fresh shift must not be marked edited")
	}

	edited, err := f.reconciler.Edit(ctx, s.ID, domain.ShiftEdit{TotalAmount: &amount, Reason: "наличные из сейфа"}, "admin")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.IsEdited() || edited.EditedBy != "admin" || !edited.TotalAmount.Equal(amount) {
		t.Fatalf("unexpected edited shift %+v", edited)
	}

	history, err := f.reconciler.History(ctx, s.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Reason != "наличные из сейфа" {
		t.Fatalf("expected edit audit, got %+v", history)
	}
}

func TestEdit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.reconciler.Edit(ctx, "s1", domain.ShiftEdit{}, "admin"); err == nil {
		t.Fatal("expected error for empty edit")
	}
	items := -1
	if _, err := f.reconciler.Edit(ctx, "s1", domain.ShiftEdit{TotalItems: &items}, "admin"); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	end := shiftStart
	if _, err := f.reconciler.Edit(ctx, "s1", domain.ShiftEdit{End: &end}, ""); !errors.Is(err, domain.ErrUserRequired) {
		t.Fatalf("expected user required, got %v", err)
	}
}

func TestShiftEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.reconciler.Start(ctx, "u1", "l1", shiftStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.reconciler.Close(ctx, s.ID, time.Time{}); err != nil {
		t.Fatalf("close: %v", err)
	}

	pending := f.outbox.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pending))
	}
	if pending[0].EventType != string(events.ShiftStarted) || pending[1].EventType != string(events.ShiftClosed) {
		t.Fatalf("unexpected events %s, %s", pending[0].EventType, pending[1].EventType)
	}
}

func TestSummarize(t *testing.T) {
	orders := []domain.Order{
		{ID: "a", Total: decimal.NewFromInt(100), Status: domain.OrderStatusCompleted, Items: []domain.SaleLineItem{{Quantity: 2}, {Quantity: 1}}},
		{ID: "b", Total: decimal.NewFromInt(50), Status: domain.OrderStatusRefund, Items: []domain.SaleLineItem{{Quantity: 5}}},
	}

	got := Summarize(orders)
	if !got.TotalAmount.Equal(decimal.NewFromInt(100)) || got.TotalItems != 3 || len(got.Sales) != 2 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.Sales[0].Items != 3 || !got.Sales[1].Refunded {
		t.Fatalf("unexpected sales %+v", got.Sales)
	}
}

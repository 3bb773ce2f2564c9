package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

func TestBatchRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewBatchRepository(store)
	ctx := context.Background()

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	created, err := repo.Create(ctx, domain.Batch{
		ProductID:     "p1",
		LocationID:    "loc-1",
		Quantity:      5,
		UnitCost:      decimal.NewFromInt(100),
		ReceptionDate: day,
		BatchNumber:   "M-2024-03-15-001",
		CreatedAt:     day.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Fatalf("unexpected created batch: %+v", created)
	}
	if _, err := repo.Create(ctx, domain.Batch{
		ProductID:     "p1",
		LocationID:    "loc-1",
		Quantity:      5,
		UnitCost:      decimal.NewFromInt(150),
		ReceptionDate: day.AddDate(0, 0, 1),
		BatchNumber:   "M-2024-03-16-001",
		CreatedAt:     day.Add(2 * time.Hour),
	}); err != nil {
		t.Fatalf("create second batch: %v", err)
	}

	listed, err := repo.List(ctx, domain.Where(
		domain.Eq(domain.FieldProductID, "p1"),
		domain.Gt(domain.FieldQuantity, 0),
	).OrderBy(domain.Asc(domain.FieldReceptionDate)))
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(listed) != 2 || listed[0].BatchNumber != "M-2024-03-15-001" {
		t.Fatalf("unexpected fifo order: %+v", listed)
	}
	if !listed[0].UnitCost.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected unit cost: %s", listed[0].UnitCost)
	}

	latest, err := repo.List(ctx, domain.Where(domain.Prefix(domain.FieldBatchNumber, "M-2024-03-16-")).
		OrderBy(domain.Desc(domain.FieldBatchNumber)).WithLimit(1))
	if err != nil {
		t.Fatalf("list by prefix: %v", err)
	}
	if len(latest) != 1 || latest[0].BatchNumber != "M-2024-03-16-001" {
		t.Fatalf("unexpected prefix result: %+v", latest)
	}

	created.Quantity = 3
	updated, err := repo.Update(ctx, created)
	if err != nil {
		t.Fatalf("update batch: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	if _, err := repo.Update(ctx, created); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict on stale update, got %v", err)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := repo.Update(ctx, updated); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update of deleted batch, got %v", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestOrderRepository_PostgresUniqueNumber(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := domain.Order{
		OrderNumber: "S00001",
		UserID:      "u1",
		LocationID:  "loc-1",
		Items: []domain.SaleLineItem{{
			ProductID: "p1",
			Quantity:  2,
			UnitPrice: decimal.NewFromInt(300),
			Portions: []domain.BatchPortion{{
				BatchID: "b1", BatchNumber: "S-2024-03-15-001", Quantity: 2, UnitCost: decimal.NewFromInt(100),
			}},
		}},
		Discount:      decimal.Zero,
		PaymentMethod: domain.PaymentCash,
		Status:        domain.OrderStatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	order.Recalculate()

	stored, err := repo.Create(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := repo.Create(ctx, order); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate order number, got %v", err)
	}

	got, err := repo.Get(ctx, stored.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got.Items) != 1 || len(got.Items[0].Portions) != 1 || got.Items[0].Portions[0].BatchID != "b1" {
		t.Fatalf("items were not round-tripped: %+v", got.Items)
	}
	if !got.Total.Equal(decimal.NewFromInt(600)) || got.RefundedAt != nil {
		t.Fatalf("unexpected order totals: %+v", got)
	}

	refunded, err := repo.List(ctx, domain.Where(domain.Eq(domain.FieldStatus, domain.OrderStatusRefund)))
	if err != nil {
		t.Fatalf("list refunded: %v", err)
	}
	if len(refunded) != 0 {
		t.Fatalf("expected no refunded orders, got %d", len(refunded))
	}
}

func TestShiftRepository_PostgresSingleActive(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewShiftRepository(store)
	ctx := context.Background()

	active := domain.Shift{UserID: "u1", LocationID: "loc-1", Start: time.Now().UTC(), Status: domain.ShiftStatusActive}
	stored, err := repo.Create(ctx, active)
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := repo.Create(ctx, active); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate active shift, got %v", err)
	}

	end := time.Now().UTC()
	stored.Status = domain.ShiftStatusClosed
	stored.End = &end
	stored.TotalAmount = decimal.NewFromInt(100)
	stored.Sales = []domain.ShiftSale{{OrderID: "o1", OrderNumber: "S00001", Total: decimal.NewFromInt(100), Items: 1}}
	closed, err := repo.Update(ctx, stored)
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.End == nil || len(closed.Sales) != 1 {
		t.Fatalf("unexpected closed shift: %+v", closed)
	}

	if _, err := repo.Create(ctx, active); err != nil {
		t.Fatalf("new active shift after close: %v", err)
	}
}

func TestDirectoryAndAudit_Postgres(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	directory := NewDirectory(store)
	if _, err := directory.LocationOf(ctx, "u1"); !errors.Is(err, domain.ErrLocationNotAssigned) {
		t.Fatalf("expected ErrLocationNotAssigned, got %v", err)
	}
	if err := directory.Assign(ctx, "u1", domain.Location{ID: "loc-1", Name: "Сургут"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	location, err := directory.LocationOf(ctx, "u1")
	if err != nil || location.Name != "Сургут" {
		t.Fatalf("unexpected location %+v err=%v", location, err)
	}

	audit := NewAuditRepository(store)
	if err := audit.Append(ctx, domain.AuditEvent{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "o1",
		Type:          "order.refunded",
		Actor:         "admin",
	}); err != nil {
		t.Fatalf("append audit: %v", err)
	}
	events, err := audit.List(ctx, "o1")
	if err != nil || len(events) != 1 || events[0].Actor != "admin" {
		t.Fatalf("unexpected audit events %+v err=%v", events, err)
	}
}

func TestAdvisoryLocker_Postgres(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	locker := NewAdvisoryLocker(store, nil)

	unlock, err := locker.Lock(context.Background(), "stock:p1:loc-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "stock:p1:loc-1"); err == nil {
		t.Fatal("expected second lock to wait until ctx deadline")
	}

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "stock:p1:loc-1")
	if err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
	again()
}

func TestAdvisoryLocker_WaitersDoNotExhaustPool(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	store.DB().SetMaxOpenConns(2)
	locker := NewAdvisoryLocker(store, nil, WithAdvisoryRetryDelay(5*time.Millisecond))
	batches := NewBatchRepository(store)

	unlock, err := locker.Lock(context.Background(), "stock:p1:loc-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	const waiters = 8
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			release, err := locker.Lock(ctx, "stock:p1:loc-1")
			if err != nil {
				errs <- err
				return
			}
			release()
		}()
	}

	// держатель блокировки должен получить соединение для запроса, пока другие ждут
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := batches.List(ctx, domain.Query{}); err != nil {
		t.Fatalf("query while holding lock: %v", err)
	}
	unlock()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("waiter failed: %v", err)
	}
}

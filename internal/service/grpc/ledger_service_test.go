package grpcsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	ledgerv1 "github.com/alcosklad/alcoapp-sub000/api/ledger/v1"
	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/ledger"
	"github.com/alcosklad/alcoapp-sub000/internal/locations"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
	"github.com/alcosklad/alcoapp-sub000/internal/sales"
	"github.com/alcosklad/alcoapp-sub000/internal/sequence"
	grpcsvc "github.com/alcosklad/alcoapp-sub000/internal/service/grpc"
	"github.com/alcosklad/alcoapp-sub000/internal/shift"
	"github.com/alcosklad/alcoapp-sub000/internal/storage/memory"
)

const bufSize = 1024 * 1024

var spb = domain.Location{ID: "loc-spb", Name: "Санкт-Петербург"}

func newTestClient(t *testing.T) *ledgerv1.LedgerServiceClient {
	t.Helper()

	logger := loggerForTests()
	locker := lock.NewKeyed()
	batches := memory.NewBatchRepository()
	orders := memory.NewOrderRepository()
	emitter := events.NewEmitter(memory.NewOutboxRepository(), memory.NewAuditRepository())
	directory := memory.NewDirectory(map[string]domain.Location{"u1": spb, "u2": spb})

	numbers := sequence.New(locations.Default(), orders, batches, locker)
	stock := ledger.New(batches, locker,
		ledger.WithBatchNumberer(numbers),
		ledger.WithWriteOffRepository(memory.NewWriteOffRepository()),
		ledger.WithEvents(emitter),
	)
	shifts := shift.NewReconciler(memory.NewShiftRepository(), orders, locker, shift.WithEvents(emitter))
	orchestrator := sales.NewOrchestrator(directory, stock, numbers, orders,
		sales.WithShifts(shifts),
		sales.WithEvents(emitter),
	)
	service := grpcsvc.NewLedgerService(orchestrator, stock, shifts, directory, logger)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	ledgerv1.RegisterLedgerServiceServer(server, service)
	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return ledgerv1.NewLedgerServiceClient(conn)
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, status.Code(err), "unexpected status: %v", err)
}

func receive(t *testing.T, client *ledgerv1.LedgerServiceClient, day int, qty int, cost int64) *ledgerv1.ReceiveResponse {
	t.Helper()
	resp, err := client.Receive(context.Background(), &ledgerv1.ReceiveRequest{
		LocationID:    spb.ID,
		LocationName:  spb.Name,
		ReceptionDate: time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC),
		Lines:         []ledgerv1.ReceiveLine{{ProductID: "p1", Quantity: qty, UnitCost: decimal.NewFromInt(cost)}},
	})
	require.NoError(t, err)
	return resp
}

func TestLedgerService_SellRefundAndShiftLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := receive(t, client, 15, 5, 100)
	require.Equal(t, "S-2026-02-15-001", first.BatchNumber)
	require.Len(t, first.Batches, 1)
	second := receive(t, client, 16, 5, 150)
	require.Equal(t, "S-2026-02-16-001", second.BatchNumber)

	stock, err := client.GetStock(ctx, &ledgerv1.GetStockRequest{ProductID: "p1", LocationID: spb.ID})
	require.NoError(t, err)
	require.Equal(t, 10, stock.Available)
	require.True(t, stock.StockCost.Equal(decimal.NewFromInt(1250)), "stock cost %s", stock.StockCost)
	require.True(t, stock.WeightedUnitCost.Equal(decimal.NewFromInt(125)))

	sold, err := client.Sell(ctx, &ledgerv1.SellRequest{
		UserID: "u1",
		Items:  []ledgerv1.SaleItem{{ProductID: "p1", ProductName: "Вино", Quantity: 7, UnitPrice: decimal.NewFromInt(300)}},
	})
	require.NoError(t, err)
	order := sold.Order
	require.Equal(t, "S00001", order.OrderNumber)
	require.Equal(t, "cash", order.PaymentMethod)
	require.True(t, order.Total.Equal(decimal.NewFromInt(2100)))
	require.True(t, order.CostTotal.Equal(decimal.NewFromInt(800)), "cost %s", order.CostTotal)
	require.Equal(t, []string{"S-2026-02-15-001", "S-2026-02-16-001"}, order.Items[0].BatchNumbers)
	require.NotEmpty(t, order.ShiftID)

	batches, err := client.ListBatches(ctx, &ledgerv1.ListBatchesRequest{ProductID: "p1", LocationID: spb.ID})
	require.NoError(t, err)
	require.Len(t, batches.Batches, 1)
	require.Equal(t, 3, batches.Batches[0].Quantity)

	_, err = client.Sell(ctx, &ledgerv1.SellRequest{
		UserID: "u1",
		Items:  []ledgerv1.SaleItem{{ProductID: "p1", Quantity: 10, UnitPrice: decimal.NewFromInt(300)}},
	})
	requireCode(t, err, codes.FailedPrecondition)
	require.Contains(t, status.Convert(err).Message(), "available 3, requested 10")

	active, err := client.GetActiveShift(ctx, &ledgerv1.GetActiveShiftRequest{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, order.ShiftID, active.Shift.ID)

	refunded, err := client.Refund(ctx, &ledgerv1.RefundRequest{OrderID: order.ID, ActorID: "admin"})
	require.NoError(t, err)
	require.Equal(t, "refund", refunded.Order.Status)
	require.Equal(t, "admin", refunded.Order.RefundedBy)

	_, err = client.Refund(ctx, &ledgerv1.RefundRequest{OrderID: order.ID, ActorID: "admin"})
	requireCode(t, err, codes.FailedPrecondition)

	stock, err = client.GetStock(ctx, &ledgerv1.GetStockRequest{ProductID: "p1", LocationID: spb.ID})
	require.NoError(t, err)
	require.Equal(t, 10, stock.Available)

	got, err := client.GetOrder(ctx, &ledgerv1.GetOrderRequest{OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	require.Equal(t, string(events.OrderRefunded), got.History[0].Type)

	preview, err := client.PreviewShift(ctx, &ledgerv1.PreviewShiftRequest{ShiftID: active.Shift.ID})
	require.NoError(t, err)
	require.True(t, preview.TotalAmount.IsZero(), "refunded sale must not count: %s", preview.TotalAmount)
	require.Len(t, preview.Sales, 1)
	require.True(t, preview.Sales[0].Refunded)

	closed, err := client.CloseShift(ctx, &ledgerv1.CloseShiftRequest{ShiftID: active.Shift.ID})
	require.NoError(t, err)
	require.Equal(t, "closed", closed.Shift.Status)
	require.NotNil(t, closed.Shift.End)

	_, err = client.CloseShift(ctx, &ledgerv1.CloseShiftRequest{ShiftID: active.Shift.ID})
	requireCode(t, err, codes.FailedPrecondition)

	amount := decimal.NewFromInt(50)
	edited, err := client.EditShift(ctx, &ledgerv1.EditShiftRequest{
		ShiftID:     active.Shift.ID,
		AdminID:     "admin",
		TotalAmount: &amount,
		Reason:      "наличные пересчитаны",
	})
	require.NoError(t, err)
	require.Equal(t, "admin", edited.Shift.EditedBy)
	require.NotNil(t, edited.Shift.EditedAt)
	require.True(t, edited.Shift.TotalAmount.Equal(amount))

	_, err = client.GetActiveShift(ctx, &ledgerv1.GetActiveShiftRequest{UserID: "u1"})
	requireCode(t, err, codes.NotFound)
}

func TestLedgerService_ShiftStartAndForceClose(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	started, err := client.StartShift(ctx, &ledgerv1.StartShiftRequest{UserID: "u2"})
	require.NoError(t, err)
	require.Equal(t, spb.ID, started.Shift.LocationID)

	_, err = client.StartShift(ctx, &ledgerv1.StartShiftRequest{UserID: "u2"})
	requireCode(t, err, codes.AlreadyExists)

	_, err = client.EditShift(ctx, &ledgerv1.EditShiftRequest{ShiftID: started.Shift.ID, AdminID: "admin", Reason: "noop"})
	requireCode(t, err, codes.InvalidArgument)

	items := 3
	_, err = client.EditShift(ctx, &ledgerv1.EditShiftRequest{ShiftID: started.Shift.ID, AdminID: "admin", TotalItems: &items})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = client.CloseShift(ctx, &ledgerv1.CloseShiftRequest{ShiftID: started.Shift.ID, Force: true})
	requireCode(t, err, codes.InvalidArgument)

	closed, err := client.CloseShift(ctx, &ledgerv1.CloseShiftRequest{ShiftID: started.Shift.ID, Force: true, AdminID: "admin"})
	require.NoError(t, err)
	require.Equal(t, "admin", closed.Shift.ClosedBy)

	_, err = client.StartShift(ctx, &ledgerv1.StartShiftRequest{UserID: "stranger"})
	requireCode(t, err, codes.FailedPrecondition)
}

func TestLedgerService_WriteOffAndDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	reception := receive(t, client, 15, 4, 200)
	batchID := reception.Batches[0].ID

	_, err := client.WriteOff(ctx, &ledgerv1.WriteOffRequest{BatchID: batchID, Quantity: 1, UserID: "u1"})
	requireCode(t, err, codes.InvalidArgument)

	writeOff, err := client.WriteOff(ctx, &ledgerv1.WriteOffRequest{BatchID: batchID, Quantity: 1, Reason: "бой", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, writeOff.Cost.Equal(decimal.NewFromInt(200)))

	sold, err := client.Sell(ctx, &ledgerv1.SellRequest{
		UserID:        "u1",
		PaymentMethod: "transfer",
		Items:         []ledgerv1.SaleItem{{ProductID: "p1", Quantity: 3, UnitPrice: decimal.NewFromInt(500)}},
	})
	require.NoError(t, err)

	_, err = client.DeleteOrder(ctx, &ledgerv1.DeleteOrderRequest{OrderID: sold.Order.ID, ActorID: "admin"})
	require.NoError(t, err)

	_, err = client.GetOrder(ctx, &ledgerv1.GetOrderRequest{OrderID: sold.Order.ID})
	requireCode(t, err, codes.NotFound)

	stock, err := client.GetStock(ctx, &ledgerv1.GetStockRequest{ProductID: "p1", LocationID: spb.ID})
	require.NoError(t, err)
	require.Equal(t, 0, stock.Available, "delete must not restore stock")
	require.True(t, stock.WeightedUnitCost.IsZero())

	_, err = client.WriteOff(ctx, &ledgerv1.WriteOffRequest{BatchID: batchID, Quantity: 1, Reason: "бой"})
	requireCode(t, err, codes.NotFound)
}

func TestLedgerService_Validation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Receive(ctx, &ledgerv1.ReceiveRequest{
		LocationID:   "loc-x",
		LocationName: "Атлантида",
		Lines:        []ledgerv1.ReceiveLine{{ProductID: "p1", Quantity: 1, UnitCost: decimal.NewFromInt(1)}},
	})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.Receive(ctx, &ledgerv1.ReceiveRequest{Lines: []ledgerv1.ReceiveLine{{ProductID: "p1", Quantity: 1}}})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.Sell(ctx, &ledgerv1.SellRequest{UserID: "u1"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.Sell(ctx, &ledgerv1.SellRequest{
		UserID:        "u1",
		PaymentMethod: "barter",
		Items:         []ledgerv1.SaleItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.GetOrder(ctx, &ledgerv1.GetOrderRequest{})
	requireCode(t, err, codes.InvalidArgument)

	_, err = client.ListBatches(ctx, &ledgerv1.ListBatchesRequest{ProductID: "p1"})
	requireCode(t, err, codes.InvalidArgument)

	listed, err := client.ListOrders(ctx, &ledgerv1.ListOrdersRequest{UserID: "u1"})
	require.NoError(t, err)
	require.Empty(t, listed.Orders)
}

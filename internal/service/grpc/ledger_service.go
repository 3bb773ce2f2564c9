package grpcsvc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/alcosklad/alcoapp-sub000/api/ledger/v1"
	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/ledger"
	"github.com/alcosklad/alcoapp-sub000/internal/sales"
)

const defaultListOrdersLimit = 100

// Sales операции над заказами.
type Sales interface {
	Sell(ctx context.Context, req sales.SaleRequest) (domain.Order, error)
	Refund(ctx context.Context, orderID, actorID string) (domain.Order, error)
	Delete(ctx context.Context, orderID, actorID string) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, f sales.ListFilter) ([]domain.Order, error)
	History(ctx context.Context, orderID string) ([]domain.AuditEvent, error)
}

// Stock операции над партиями.
type Stock interface {
	Receive(ctx context.Context, in ledger.ReceiveInput) (ledger.Reception, error)
	WriteOff(ctx context.Context, in ledger.WriteOffInput) (domain.WriteOff, error)
	ListConsumable(ctx context.Context, productID, locationID string) ([]domain.Batch, error)
	Available(ctx context.Context, productID, locationID string) (int, error)
	StockCost(ctx context.Context, productID, locationID string) (decimal.Decimal, error)
}

// Shifts операции над сменами.
type Shifts interface {
	Start(ctx context.Context, userID, locationID string, start time.Time) (domain.Shift, error)
	Active(ctx context.Context, userID string) (domain.Shift, error)
	Close(ctx context.Context, shiftID string, end time.Time) (domain.Shift, error)
	ForceClose(ctx context.Context, shiftID string, end time.Time, adminID string) (domain.Shift, error)
	Edit(ctx context.Context, shiftID string, edit domain.ShiftEdit, editorID string) (domain.Shift, error)
	Preview(ctx context.Context, shiftID string, at time.Time) (domain.ShiftSummary, error)
}

// LedgerService реализует gRPC API поверх sales, ledger и shift.
type LedgerService struct {
	ledgerv1.UnimplementedLedgerServiceServer

	sales     Sales
	stock     Stock
	shifts    Shifts
	directory domain.LocationDirectory
	logger    *log.Entry
}

// NewLedgerService конструирует сервис с зависимостями.
func NewLedgerService(salesSvc Sales, stock Stock, shifts Shifts, directory domain.LocationDirectory, logger *log.Entry) *LedgerService {
	if logger == nil {
		logger = log.WithField("component", "ledger-grpc")
	}
	return &LedgerService{
		sales:     salesSvc,
		stock:     stock,
		shifts:    shifts,
		directory: directory,
		logger:    logger,
	}
}

// Sell проводит продажу.
func (s *LedgerService) Sell(ctx context.Context, req *ledgerv1.SellRequest) (*ledgerv1.SellResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}

	items := make([]sales.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, sales.SaleItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	order, err := s.sales.Sell(ctx, sales.SaleRequest{
		UserID:        req.UserID,
		Items:         items,
		Discount:      req.Discount,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		return nil, s.toStatus(err, "Sell")
	}
	return &ledgerv1.SellResponse{Order: toOrder(order)}, nil
}

// Refund возвращает заказ. Если статус сохранён, но зачисление не удалось,
// ответ содержит ошибку Internal: повторный возврат уже невозможен.
func (s *LedgerService) Refund(ctx context.Context, req *ledgerv1.RefundRequest) (*ledgerv1.RefundResponse, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.sales.Refund(ctx, req.OrderID, req.ActorID)
	if err != nil {
		if order.ID != "" {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("refund stored without full stock credit")
			return nil, status.Error(codes.Internal, "refund stored but stock credit failed")
		}
		return nil, s.toStatus(err, "Refund")
	}
	return &ledgerv1.RefundResponse{Order: toOrder(order)}, nil
}

// DeleteOrder удаляет заказ без возврата товара.
func (s *LedgerService) DeleteOrder(ctx context.Context, req *ledgerv1.DeleteOrderRequest) (*ledgerv1.DeleteOrderResponse, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	if err := s.sales.Delete(ctx, req.OrderID, req.ActorID); err != nil {
		return nil, s.toStatus(err, "DeleteOrder")
	}
	return &ledgerv1.DeleteOrderResponse{}, nil
}

// GetOrder возвращает заказ и журнал действий по нему.
func (s *LedgerService) GetOrder(ctx context.Context, req *ledgerv1.GetOrderRequest) (*ledgerv1.GetOrderResponse, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.sales.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	history, err := s.sales.History(ctx, req.OrderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", req.OrderID).Warn("failed to load order history")
	}
	return &ledgerv1.GetOrderResponse{Order: toOrder(order), History: toAuditEvents(history)}, nil
}

// ListOrders заказы по фильтру, новые первыми.
func (s *LedgerService) ListOrders(ctx context.Context, req *ledgerv1.ListOrdersRequest) (*ledgerv1.ListOrdersResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > defaultListOrdersLimit {
		limit = defaultListOrdersLimit
	}
	orders, err := s.sales.List(ctx, sales.ListFilter{
		UserID:  req.UserID,
		ShiftID: req.ShiftID,
		Status:  domain.OrderStatus(req.Status),
		From:    req.From,
		To:      req.To,
		Limit:   limit,
	})
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}
	resp := &ledgerv1.ListOrdersResponse{Orders: make([]ledgerv1.Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrder(order))
	}
	return resp, nil
}

// Receive принимает товар на точку.
func (s *LedgerService) Receive(ctx context.Context, req *ledgerv1.ReceiveRequest) (*ledgerv1.ReceiveResponse, error) {
	location := domain.Location{ID: req.LocationID, Name: req.LocationName}
	if location.ID == "" || location.Name == "" {
		if req.UserID == "" {
			return nil, status.Error(codes.InvalidArgument, "location or user_id is required")
		}
		resolved, err := s.directory.LocationOf(ctx, req.UserID)
		if err != nil {
			return nil, s.toStatus(err, "Receive")
		}
		location = resolved
	}

	lines := make([]ledger.ReceiveLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, ledger.ReceiveLine{ProductID: line.ProductID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}

	reception, err := s.stock.Receive(ctx, ledger.ReceiveInput{
		Location:      location,
		ReceptionDate: req.ReceptionDate,
		Lines:         lines,
	})
	if err != nil {
		return nil, s.toStatus(err, "Receive")
	}
	return &ledgerv1.ReceiveResponse{
		BatchNumber: reception.BatchNumber,
		Degraded:    reception.Degraded,
		Batches:     toBatches(reception.Batches),
	}, nil
}

// WriteOff списывает товар из партии.
func (s *LedgerService) WriteOff(ctx context.Context, req *ledgerv1.WriteOffRequest) (*ledgerv1.WriteOffResponse, error) {
	if req.BatchID == "" {
		return nil, status.Error(codes.InvalidArgument, "batch_id is required")
	}
	record, err := s.stock.WriteOff(ctx, ledger.WriteOffInput{
		BatchID:  req.BatchID,
		Quantity: req.Quantity,
		Reason:   req.Reason,
		Comment:  req.Comment,
		UserID:   req.UserID,
	})
	if err != nil {
		return nil, s.toStatus(err, "WriteOff")
	}
	return &ledgerv1.WriteOffResponse{
		ID:          record.ID,
		BatchNumber: record.BatchNumber,
		Quantity:    record.Quantity,
		Cost:        record.Cost,
		CreatedAt:   record.CreatedAt,
	}, nil
}

// ListBatches партии с остатком в порядке FIFO.
func (s *LedgerService) ListBatches(ctx context.Context, req *ledgerv1.ListBatchesRequest) (*ledgerv1.ListBatchesResponse, error) {
	if req.ProductID == "" || req.LocationID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id and location_id are required")
	}
	batches, err := s.stock.ListConsumable(ctx, req.ProductID, req.LocationID)
	if err != nil {
		return nil, s.toStatus(err, "ListBatches")
	}
	return &ledgerv1.ListBatchesResponse{Batches: toBatches(batches)}, nil
}

// GetStock остаток и себестоимость остатка по паре (товар, точка).
func (s *LedgerService) GetStock(ctx context.Context, req *ledgerv1.GetStockRequest) (*ledgerv1.GetStockResponse, error) {
	if req.ProductID == "" || req.LocationID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id and location_id are required")
	}
	available, err := s.stock.Available(ctx, req.ProductID, req.LocationID)
	if err != nil {
		return nil, s.toStatus(err, "GetStock")
	}
	unitCost, err := s.stock.StockCost(ctx, req.ProductID, req.LocationID)
	if err != nil {
		return nil, s.toStatus(err, "GetStock")
	}
	return &ledgerv1.GetStockResponse{
		Available:        available,
		StockCost:        unitCost.Mul(decimal.NewFromInt(int64(available))),
		WeightedUnitCost: unitCost,
	}, nil
}

// StartShift открывает смену на точке сотрудника.
func (s *LedgerService) StartShift(ctx context.Context, req *ledgerv1.StartShiftRequest) (*ledgerv1.StartShiftResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	location, err := s.directory.LocationOf(ctx, req.UserID)
	if err != nil {
		return nil, s.toStatus(err, "StartShift")
	}
	shift, err := s.shifts.Start(ctx, req.UserID, location.ID, time.Time{})
	if err != nil {
		return nil, s.toStatus(err, "StartShift")
	}
	return &ledgerv1.StartShiftResponse{Shift: toShift(shift)}, nil
}

// CloseShift закрывает смену сотрудником или, с force, администратором.
func (s *LedgerService) CloseShift(ctx context.Context, req *ledgerv1.CloseShiftRequest) (*ledgerv1.CloseShiftResponse, error) {
	if req.ShiftID == "" {
		return nil, status.Error(codes.InvalidArgument, "shift_id is required")
	}

	var (
		shift domain.Shift
		err   error
	)
	if req.Force {
		if req.AdminID == "" {
			return nil, status.Error(codes.InvalidArgument, "admin_id is required for force close")
		}
		shift, err = s.shifts.ForceClose(ctx, req.ShiftID, time.Time{}, req.AdminID)
	} else {
		shift, err = s.shifts.Close(ctx, req.ShiftID, time.Time{})
	}
	if err != nil {
		return nil, s.toStatus(err, "CloseShift")
	}
	return &ledgerv1.CloseShiftResponse{Shift: toShift(shift)}, nil
}

// EditShift исправляет закрытую смену.
func (s *LedgerService) EditShift(ctx context.Context, req *ledgerv1.EditShiftRequest) (*ledgerv1.EditShiftResponse, error) {
	if req.ShiftID == "" {
		return nil, status.Error(codes.InvalidArgument, "shift_id is required")
	}
	shift, err := s.shifts.Edit(ctx, req.ShiftID, domain.ShiftEdit{
		Start:       req.Start,
		End:         req.End,
		TotalAmount: req.TotalAmount,
		TotalItems:  req.TotalItems,
		Reason:      req.Reason,
	}, req.AdminID)
	if err != nil {
		return nil, s.toStatus(err, "EditShift")
	}
	return &ledgerv1.EditShiftResponse{Shift: toShift(shift)}, nil
}

// GetActiveShift открытая смена сотрудника.
func (s *LedgerService) GetActiveShift(ctx context.Context, req *ledgerv1.GetActiveShiftRequest) (*ledgerv1.GetActiveShiftResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	shift, err := s.shifts.Active(ctx, req.UserID)
	if err != nil {
		return nil, s.toStatus(err, "GetActiveShift")
	}
	return &ledgerv1.GetActiveShiftResponse{Shift: toShift(shift)}, nil
}

// PreviewShift текущие итоги смены без закрытия.
func (s *LedgerService) PreviewShift(ctx context.Context, req *ledgerv1.PreviewShiftRequest) (*ledgerv1.PreviewShiftResponse, error) {
	if req.ShiftID == "" {
		return nil, status.Error(codes.InvalidArgument, "shift_id is required")
	}
	summary, err := s.shifts.Preview(ctx, req.ShiftID, time.Time{})
	if err != nil {
		return nil, s.toStatus(err, "PreviewShift")
	}
	return &ledgerv1.PreviewShiftResponse{
		TotalAmount: summary.TotalAmount,
		TotalItems:  summary.TotalItems,
		Sales:       toShiftSales(summary.Sales),
	}, nil
}

var _ ledgerv1.LedgerServiceServer = (*LedgerService)(nil)

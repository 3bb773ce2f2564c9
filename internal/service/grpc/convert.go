package grpcsvc

import (
	ledgerv1 "github.com/alcosklad/alcoapp-sub000/api/ledger/v1"
	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

func toOrder(order domain.Order) ledgerv1.Order {
	items := make([]ledgerv1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ledgerv1.OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			LocationID:   item.LocationID,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			UnitCost:     item.UnitCost,
			BatchNumbers: item.BatchNumbersConsumed(),
		})
	}
	return ledgerv1.Order{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		NumberDegraded: order.NumberDegraded,
		UserID:         order.UserID,
		ShiftID:        order.ShiftID,
		LocationID:     order.LocationID,
		Items:          items,
		Subtotal:       order.Subtotal,
		Discount:       order.Discount,
		Total:          order.Total,
		PaymentMethod:  string(order.PaymentMethod),
		CostTotal:      order.CostTotal,
		Profit:         order.Profit,
		Status:         string(order.Status),
		CreatedAt:      order.CreatedAt,
		RefundedAt:     order.RefundedAt,
		RefundedBy:     order.RefundedBy,
	}
}

func toBatches(batches []domain.Batch) []ledgerv1.Batch {
	result := make([]ledgerv1.Batch, 0, len(batches))
	for _, b := range batches {
		result = append(result, ledgerv1.Batch{
			ID:            b.ID,
			ProductID:     b.ProductID,
			LocationID:    b.LocationID,
			Quantity:      b.Quantity,
			UnitCost:      b.UnitCost,
			ReceptionDate: b.ReceptionDate,
			BatchNumber:   b.BatchNumber,
			CreatedAt:     b.CreatedAt,
		})
	}
	return result
}

func toShift(shift domain.Shift) ledgerv1.Shift {
	return ledgerv1.Shift{
		ID:          shift.ID,
		UserID:      shift.UserID,
		LocationID:  shift.LocationID,
		Start:       shift.Start,
		End:         shift.End,
		Status:      string(shift.Status),
		TotalAmount: shift.TotalAmount,
		TotalItems:  shift.TotalItems,
		Sales:       toShiftSales(shift.Sales),
		ClosedBy:    shift.ClosedBy,
		EditedAt:    shift.EditedAt,
		EditedBy:    shift.EditedBy,
	}
}

func toShiftSales(sales []domain.ShiftSale) []ledgerv1.ShiftSale {
	result := make([]ledgerv1.ShiftSale, 0, len(sales))
	for _, sale := range sales {
		result = append(result, ledgerv1.ShiftSale{
			OrderID:     sale.OrderID,
			OrderNumber: sale.OrderNumber,
			Total:       sale.Total,
			Items:       sale.Items,
			Refunded:    sale.Refunded,
			CreatedAt:   sale.CreatedAt,
		})
	}
	return result
}

func toAuditEvents(events []domain.AuditEvent) []ledgerv1.AuditEvent {
	if len(events) == 0 {
		return nil
	}
	result := make([]ledgerv1.AuditEvent, 0, len(events))
	for _, event := range events {
		result = append(result, ledgerv1.AuditEvent{
			Type:     event.Type,
			Actor:    event.Actor,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return result
}

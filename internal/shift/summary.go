package shift

import (
	"github.com/shopspring/decimal"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// Summarize сворачивает заказы в итоги смены. Возвращённые заказы
// перечисляются с Refunded=true и не входят ни в сумму, ни в количество.
func Summarize(orders []domain.Order) domain.ShiftSummary {
	summary := domain.ShiftSummary{
		TotalAmount: decimal.Zero,
		Sales:       make([]domain.ShiftSale, 0, len(orders)),
	}
	for _, o := range orders {
		refunded := o.IsRefunded()
		items := o.ItemsCount()
		summary.Sales = append(summary.Sales, domain.ShiftSale{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Total:       o.Total,
			Items:       items,
			Refunded:    refunded,
			CreatedAt:   o.CreatedAt,
		})
		if refunded {
			continue
		}
		summary.TotalAmount = summary.TotalAmount.Add(o.Total)
		summary.TotalItems += items
	}
	return summary
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusCompleted продажа проведена, товар списан.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusRefund заказ возвращён, товар зачислен обратно в партии.
	OrderStatusRefund OrderStatus = "refund"
)

// PaymentMethod способ оплаты заказа.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentPrepaid  PaymentMethod = "prepaid"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentPrepaid:
		return true
	default:
		return false
	}
}

// SaleLineItem одна позиция проданного заказа.
type SaleLineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	LocationID  string          `json:"location_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	// UnitCost средневзвешенная себестоимость по списанным партиям.
	UnitCost decimal.Decimal `json:"unit_cost"`
	// Portions нужны возврату, чтобы зачислить товар в те же партии.
	Portions []BatchPortion `json:"portions"`
}

// BatchNumbersConsumed номера партий, из которых списана позиция.
func (l SaleLineItem) BatchNumbersConsumed() []string {
	return batchNumbers(l.Portions)
}

// Amount выручка по позиции: quantity·unitPrice.
func (l SaleLineItem) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cost себестоимость позиции.
func (l SaleLineItem) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, portion := range l.Portions {
		total = total.Add(portion.Cost())
	}
	return total
}

// Order проведённая продажа.
type Order struct {
	ID          string
	OrderNumber string
	// NumberDegraded выставляется, если номер выдан timestamp-фоллбэком.
	NumberDegraded bool
	UserID         string
	ShiftID        string
	LocationID     string
	Items          []SaleLineItem
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  PaymentMethod
	CostTotal      decimal.Decimal
	Profit         decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
	RefundedAt     *time.Time
	RefundedBy     string
	Version        int64
}

// Recalculate пересчитывает subtotal, total, costTotal и profit по позициям.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	cost := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.Amount())
		cost = cost.Add(item.Cost())
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Sub(o.Discount)
	o.CostTotal = cost
	o.Profit = o.Total.Sub(cost)
}

// ItemsCount сумма количеств по всем позициям.
func (o Order) ItemsCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// IsRefunded сообщает, был ли заказ возвращён.
func (o Order) IsRefunded() bool {
	return o.Status == OrderStatusRefund
}

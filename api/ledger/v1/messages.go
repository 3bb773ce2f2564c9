package ledgerv1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch партия товара на точке.
type Batch struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	LocationID    string          `json:"location_id"`
	Quantity      int             `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ReceptionDate time.Time       `json:"reception_date"`
	BatchNumber   string          `json:"batch_number"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderItem позиция проданного заказа.
type OrderItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	LocationID   string          `json:"location_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	BatchNumbers []string        `json:"batch_numbers"`
}

// Order проведённая продажа.
type Order struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"order_number"`
	NumberDegraded bool            `json:"number_degraded,omitempty"`
	UserID         string          `json:"user_id"`
	ShiftID        string          `json:"shift_id,omitempty"`
	LocationID     string          `json:"location_id"`
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method"`
	CostTotal      decimal.Decimal `json:"cost_total"`
	Profit         decimal.Decimal `json:"profit"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
	RefundedBy     string          `json:"refunded_by,omitempty"`
}

// ShiftSale строка продажи в итогах смены.
type ShiftSale struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Items       int             `json:"items"`
	Refunded    bool            `json:"refunded,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Shift смена сотрудника.
type Shift struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	LocationID  string          `json:"location_id"`
	Start       time.Time       `json:"start"`
	End         *time.Time      `json:"end,omitempty"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalItems  int             `json:"total_items"`
	Sales       []ShiftSale     `json:"sales"`
	ClosedBy    string          `json:"closed_by,omitempty"`
	EditedAt    *time.Time      `json:"edited_at,omitempty"`
	EditedBy    string          `json:"edited_by,omitempty"`
}

// AuditEvent запись журнала действий.
type AuditEvent struct {
	Type     string    `json:"type"`
	Actor    string    `json:"actor"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type SellRequest struct {
	UserID        string          `json:"user_id"`
	Items         []SaleItem      `json:"items"`
	Discount      decimal.Decimal `json:"discount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

type SellResponse struct {
	Order Order `json:"order"`
}

type RefundRequest struct {
	OrderID string `json:"order_id"`
	ActorID string `json:"actor_id"`
}

type RefundResponse struct {
	Order Order `json:"order"`
}

type DeleteOrderRequest struct {
	OrderID string `json:"order_id"`
	ActorID string `json:"actor_id"`
}

type DeleteOrderResponse struct{}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order   Order        `json:"order"`
	History []AuditEvent `json:"history,omitempty"`
}

type ListOrdersRequest struct {
	UserID  string    `json:"user_id,omitempty"`
	ShiftID string    `json:"shift_id,omitempty"`
	Status  string    `json:"status,omitempty"`
	From    time.Time `json:"from,omitempty"`
	To      time.Time `json:"to,omitempty"`
	Limit   int       `json:"limit,omitempty"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type ReceiveLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// ReceiveRequest приёмка. Точка задаётся явно (LocationID и LocationName)
// либо берётся из привязки сотрудника UserID.
type ReceiveRequest struct {
	UserID        string        `json:"user_id,omitempty"`
	LocationID    string        `json:"location_id,omitempty"`
	LocationName  string        `json:"location_name,omitempty"`
	ReceptionDate time.Time     `json:"reception_date,omitempty"`
	Lines         []ReceiveLine `json:"lines"`
}

type ReceiveResponse struct {
	BatchNumber string  `json:"batch_number"`
	Degraded    bool    `json:"degraded,omitempty"`
	Batches     []Batch `json:"batches"`
}

type WriteOffRequest struct {
	BatchID  string `json:"batch_id"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
	Comment  string `json:"comment,omitempty"`
	UserID   string `json:"user_id"`
}

type WriteOffResponse struct {
	ID          string          `json:"id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    int             `json:"quantity"`
	Cost        decimal.Decimal `json:"cost"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ListBatchesRequest struct {
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
}

type ListBatchesResponse struct {
	Batches []Batch `json:"batches"`
}

type GetStockRequest struct {
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
}

type GetStockResponse struct {
	Available        int             `json:"available"`
	StockCost        decimal.Decimal `json:"stock_cost"`
	WeightedUnitCost decimal.Decimal `json:"weighted_unit_cost"`
}

type StartShiftRequest struct {
	UserID string `json:"user_id"`
}

type StartShiftResponse struct {
	Shift Shift `json:"shift"`
}

// CloseShiftRequest закрытие смены. Force требует AdminID: смену закрывает
// администратор, а не сам сотрудник.
type CloseShiftRequest struct {
	ShiftID string `json:"shift_id"`
	Force   bool   `json:"force,omitempty"`
	AdminID string `json:"admin_id,omitempty"`
}

type CloseShiftResponse struct {
	Shift Shift `json:"shift"`
}

type EditShiftRequest struct {
	ShiftID     string           `json:"shift_id"`
	AdminID     string           `json:"admin_id"`
	Start       *time.Time       `json:"start,omitempty"`
	End         *time.Time       `json:"end,omitempty"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
	TotalItems  *int             `json:"total_items,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

type EditShiftResponse struct {
	Shift Shift `json:"shift"`
}

type GetActiveShiftRequest struct {
	UserID string `json:"user_id"`
}

type GetActiveShiftResponse struct {
	Shift Shift `json:"shift"`
}

type PreviewShiftRequest struct {
	ShiftID string `json:"shift_id"`
}

type PreviewShiftResponse struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalItems  int             `json:"total_items"`
	Sales       []ShiftSale     `json:"sales"`
}

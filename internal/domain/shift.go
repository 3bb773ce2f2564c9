package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShiftStatus состояние смены: active → closed, переход односторонний.
type ShiftStatus string

const (
	ShiftStatusActive ShiftStatus = "active"
	ShiftStatusClosed ShiftStatus = "closed"
)

// ShiftSale строка продажи в итогах смены. Возвращённые продажи перечислены,
// но в итоги не входят.
type ShiftSale struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Items       int             `json:"items"`
	Refunded    bool            `json:"refunded"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ShiftSummary итоги смены, пересчитанные по заказам.
type ShiftSummary struct {
	TotalAmount decimal.Decimal
	TotalItems  int
	Sales       []ShiftSale
}

// Shift рабочая смена сотрудника на точке.
type Shift struct {
	ID          string
	UserID      string
	LocationID  string
	Start       time.Time
	End         *time.Time
	Status      ShiftStatus
	TotalAmount decimal.Decimal
	TotalItems  int
	Sales       []ShiftSale
	// ClosedBy заполняется, если смену закрыл администратор.
	ClosedBy string
	EditedAt *time.Time
	EditedBy string
	Version  int64
}

// IsActive сообщает, открыта ли смена.
func (s Shift) IsActive() bool {
	return s.Status == ShiftStatusActive
}

// IsEdited отличает смену, исправленную администратором после закрытия.
func (s Shift) IsEdited() bool {
	return s.EditedAt != nil
}

// ShiftEdit поля, которые администратор может исправить после закрытия.
// nil означает "не менять".
type ShiftEdit struct {
	Start       *time.Time
	End         *time.Time
	TotalAmount *decimal.Decimal
	TotalItems  *int
	Reason      string
}

// Empty сообщает, что правка ничего не меняет.
func (e ShiftEdit) Empty() bool {
	return e.Start == nil && e.End == nil && e.TotalAmount == nil && e.TotalItems == nil
}

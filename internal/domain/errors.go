package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается хранилищем, если запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrDuplicate возвращается при нарушении уникальности (id, номер заказа).
	ErrDuplicate = errors.New("duplicate record")

	// ErrInsufficientStock бизнес-ошибка: в партиях меньше товара, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnknownLocation ошибка конфигурации: город отсутствует в таблице кодов.
	ErrUnknownLocation = errors.New("unknown location")
	// ErrLocationNotAssigned возвращается, если у сотрудника нет точки продаж.
	ErrLocationNotAssigned = errors.New("location is not assigned to user")

	// ErrSequenceDegraded помечает номер, выданный по timestamp-фоллбэку.
	ErrSequenceDegraded = errors.New("sequence generation degraded")
	// ErrSequenceExhausted возвращается, когда счётчик упёрся в ширину формата.
	ErrSequenceExhausted = errors.New("sequence exhausted")

	// ErrShiftAlreadyActive возвращается при попытке открыть вторую активную смену.
	ErrShiftAlreadyActive = errors.New("shift already active")
	// ErrShiftAlreadyClosed возвращается при повторном закрытии смены.
	ErrShiftAlreadyClosed = errors.New("shift already closed")
	// ErrShiftNotClosed возвращается при редактировании ещё открытой смены.
	ErrShiftNotClosed = errors.New("shift is not closed")
	// ErrNoActiveShift возвращается, если у сотрудника нет открытой смены.
	ErrNoActiveShift = errors.New("no active shift")

	// ErrOrderPersistFailed возвращается, если заказ не удалось сохранить; списания компенсированы.
	ErrOrderPersistFailed = errors.New("order persist failed")
	// ErrOrderAlreadyRefunded возвращается при повторном возврате заказа.
	ErrOrderAlreadyRefunded = errors.New("order already refunded")

	ErrUserRequired         = errors.New("user_id is required")
	ErrProductRequired      = errors.New("product_id is required")
	ErrItemsRequired        = errors.New("order must contain at least one item")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidPrice         = errors.New("price must be non-negative")
	ErrInvalidCost          = errors.New("unit cost must be non-negative")
	ErrInvalidDiscount      = errors.New("discount must be between zero and subtotal")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidTimeRange     = errors.New("end time is before start time")
	ErrInvalidShiftEdit     = errors.New("invalid shift edit")
	ErrReasonRequired       = errors.New("reason is required")
)

// InsufficientStockError описывает нехватку товара по паре (товар, точка).
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	LocationID  string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	product := e.ProductID
	if e.ProductName != "" {
		product = e.ProductName
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// UnknownLocationError содержит имя города, которого нет в таблице кодов.
type UnknownLocationError struct {
	Name string
}

func (e *UnknownLocationError) Error() string {
	return fmt.Sprintf("unknown location %q", e.Name)
}

func (e *UnknownLocationError) Unwrap() error { return ErrUnknownLocation }

// AlreadyActiveShiftError ссылается на уже открытую смену сотрудника.
type AlreadyActiveShiftError struct {
	UserID  string
	ShiftID string
}

func (e *AlreadyActiveShiftError) Error() string {
	return fmt.Sprintf("user %s already has active shift %s", e.UserID, e.ShiftID)
}

func (e *AlreadyActiveShiftError) Unwrap() error { return ErrShiftAlreadyActive }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, является ли ошибка отсутствием записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Package lock сериализует операции по ключу: остатки по паре (товар, точка),
// счётчики номеров по коду точки и дню, открытие смены по сотруднику.
package lock

import (
	"context"
	"strings"
)

// Unlock снимает захваченную блокировку. Повторный вызов безопасен.
type Unlock func()

// Locker захватывает эксклюзивную блокировку по ключу. Lock блокируется,
// пока ключ занят, и возвращает ошибку ctx при отмене.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// StockKey ключ остатков по паре (товар, точка).
func StockKey(productID, locationID string) string {
	return join("stock", productID, locationID)
}

// OrderSequenceKey ключ счётчика номеров заказов точки.
func OrderSequenceKey(code string) string {
	return join("seq", "order", code)
}

// BatchSequenceKey ключ счётчика номеров партий точки за день.
func BatchSequenceKey(code, day string) string {
	return join("seq", "batch", code, day)
}

// ShiftKey ключ открытия и закрытия смен сотрудника.
func ShiftKey(userID string) string {
	return join("shift", userID)
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

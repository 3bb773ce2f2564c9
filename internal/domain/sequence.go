package domain

import "fmt"

// SequenceNumber номер заказа или партии, выданный генератором.
type SequenceNumber struct {
	Value string
	// Degraded выставляется, если номер получен из timestamp, а не из счётчика;
	// уникальность такого номера не гарантируется.
	Degraded bool
	// Cause ошибка хранилища, из-за которой сработал фоллбэк.
	Cause error
}

// Err возвращает ошибку, совместимую с ErrSequenceDegraded, для деградированного номера.
func (n SequenceNumber) Err() error {
	if !n.Degraded {
		return nil
	}
	if n.Cause == nil {
		return fmt.Errorf("%w: %s", ErrSequenceDegraded, n.Value)
	}
	return fmt.Errorf("%w: %s: %w", ErrSequenceDegraded, n.Value, n.Cause)
}

func (n SequenceNumber) String() string {
	return n.Value
}

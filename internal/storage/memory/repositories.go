package memory

import (
	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// NewBatchRepository возвращает in-memory хранилище партий.
func NewBatchRepository() domain.BatchRepository {
	return NewCollection(Schema[domain.Batch]{
		Name:       "batch",
		ID:         func(b domain.Batch) string { return b.ID },
		SetID:      func(b *domain.Batch, id string) { b.ID = id },
		Version:    func(b domain.Batch) int64 { return b.Version },
		SetVersion: func(b *domain.Batch, v int64) { b.Version = v },
		Fields: map[string]func(domain.Batch) any{
			domain.FieldID:            func(b domain.Batch) any { return b.ID },
			domain.FieldProductID:     func(b domain.Batch) any { return b.ProductID },
			domain.FieldLocationID:    func(b domain.Batch) any { return b.LocationID },
			domain.FieldQuantity:      func(b domain.Batch) any { return b.Quantity },
			domain.FieldReceptionDate: func(b domain.Batch) any { return b.ReceptionDate },
			domain.FieldBatchNumber:   func(b domain.Batch) any { return b.BatchNumber },
			domain.FieldCreatedAt:     func(b domain.Batch) any { return b.CreatedAt },
		},
	})
}

// NewOrderRepository возвращает in-memory хранилище заказов с уникальным номером.
func NewOrderRepository() domain.OrderRepository {
	return NewCollection(Schema[domain.Order]{
		Name:       "order",
		ID:         func(o domain.Order) string { return o.ID },
		SetID:      func(o *domain.Order, id string) { o.ID = id },
		Version:    func(o domain.Order) int64 { return o.Version },
		SetVersion: func(o *domain.Order, v int64) { o.Version = v },
		Fields: map[string]func(domain.Order) any{
			domain.FieldID:          func(o domain.Order) any { return o.ID },
			domain.FieldOrderNumber: func(o domain.Order) any { return o.OrderNumber },
			domain.FieldUserID:      func(o domain.Order) any { return o.UserID },
			domain.FieldShiftID:     func(o domain.Order) any { return o.ShiftID },
			domain.FieldLocationID:  func(o domain.Order) any { return o.LocationID },
			domain.FieldStatus:      func(o domain.Order) any { return o.Status },
			domain.FieldCreatedAt:   func(o domain.Order) any { return o.CreatedAt },
		},
		Unique: map[string]func(domain.Order) string{
			domain.FieldOrderNumber: func(o domain.Order) string { return o.OrderNumber },
		},
		Clone: cloneOrder,
	})
}

// NewShiftRepository возвращает in-memory хранилище смен. Индекс active_user
// не даёт сохранить вторую активную смену сотрудника.
func NewShiftRepository() domain.ShiftRepository {
	return NewCollection(Schema[domain.Shift]{
		Name:       "shift",
		ID:         func(s domain.Shift) string { return s.ID },
		SetID:      func(s *domain.Shift, id string) { s.ID = id },
		Version:    func(s domain.Shift) int64 { return s.Version },
		SetVersion: func(s *domain.Shift, v int64) { s.Version = v },
		Fields: map[string]func(domain.Shift) any{
			domain.FieldID:         func(s domain.Shift) any { return s.ID },
			domain.FieldUserID:     func(s domain.Shift) any { return s.UserID },
			domain.FieldLocationID: func(s domain.Shift) any { return s.LocationID },
			domain.FieldStatus:     func(s domain.Shift) any { return s.Status },
			domain.FieldStart:      func(s domain.Shift) any { return s.Start },
		},
		Unique: map[string]func(domain.Shift) string{
			"active_user": func(s domain.Shift) string {
				if s.Status != domain.ShiftStatusActive {
					return ""
				}
				return s.UserID
			},
		},
		Clone: cloneShift,
	})
}

// NewWriteOffRepository возвращает in-memory хранилище списаний.
func NewWriteOffRepository() domain.WriteOffRepository {
	return NewCollection(Schema[domain.WriteOff]{
		Name:       "write_off",
		ID:         func(w domain.WriteOff) string { return w.ID },
		SetID:      func(w *domain.WriteOff, id string) { w.ID = id },
		Version:    func(domain.WriteOff) int64 { return 0 },
		SetVersion: func(*domain.WriteOff, int64) {},
		Fields: map[string]func(domain.WriteOff) any{
			domain.FieldID:         func(w domain.WriteOff) any { return w.ID },
			domain.FieldBatchID:    func(w domain.WriteOff) any { return w.BatchID },
			domain.FieldProductID:  func(w domain.WriteOff) any { return w.ProductID },
			domain.FieldLocationID: func(w domain.WriteOff) any { return w.LocationID },
			domain.FieldUserID:     func(w domain.WriteOff) any { return w.UserID },
			domain.FieldCreatedAt:  func(w domain.WriteOff) any { return w.CreatedAt },
		},
	})
}

func cloneOrder(o domain.Order) domain.Order {
	if o.Items != nil {
		items := make([]domain.SaleLineItem, len(o.Items))
		for i, item := range o.Items {
			item.Portions = append([]domain.BatchPortion(nil), item.Portions...)
			items[i] = item
		}
		o.Items = items
	}
	if o.RefundedAt != nil {
		t := *o.RefundedAt
		o.RefundedAt = &t
	}
	return o
}

func cloneShift(s domain.Shift) domain.Shift {
	if s.Sales != nil {
		s.Sales = append([]domain.ShiftSale(nil), s.Sales...)
	}
	if s.End != nil {
		t := *s.End
		s.End = &t
	}
	if s.EditedAt != nil {
		t := *s.EditedAt
		s.EditedAt = &t
	}
	return s
}

package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// NewBatchRepository создаёт PostgreSQL-хранилище партий.
func NewBatchRepository(store *Store) *Collection[domain.Batch] {
	return newCollection(store, table[domain.Batch]{
		name: "batches",
		columns: []string{
			"id", "product_id", "location_id", "quantity", "unit_cost",
			"reception_date", "batch_number", "created_at",
		},
		fields: map[string]string{
			domain.FieldID:            "id",
			domain.FieldProductID:     "product_id",
			domain.FieldLocationID:    "location_id",
			domain.FieldQuantity:      "quantity",
			domain.FieldReceptionDate: "reception_date",
			domain.FieldBatchNumber:   "batch_number",
			domain.FieldCreatedAt:     "created_at",
		},
		tiebreak:   "seq",
		id:         func(b domain.Batch) string { return b.ID },
		setID:      func(b *domain.Batch, id string) { b.ID = id },
		version:    func(b domain.Batch) int64 { return b.Version },
		setVersion: func(b *domain.Batch, v int64) { b.Version = v },
		values: func(b domain.Batch) ([]any, error) {
			return []any{
				b.ID, b.ProductID, b.LocationID, b.Quantity, b.UnitCost,
				b.ReceptionDate.UTC(), b.BatchNumber, b.CreatedAt.UTC(),
			}, nil
		},
		scan: func(row rowScanner) (domain.Batch, error) {
			var b domain.Batch
			if err := row.Scan(
				&b.ID, &b.ProductID, &b.LocationID, &b.Quantity, &b.UnitCost,
				&b.ReceptionDate, &b.BatchNumber, &b.CreatedAt, &b.Version,
			); err != nil {
				return domain.Batch{}, err
			}
			b.ReceptionDate = b.ReceptionDate.UTC()
			b.CreatedAt = b.CreatedAt.UTC()
			return b, nil
		},
	})
}

// NewOrderRepository создаёт PostgreSQL-хранилище заказов. Позиции лежат в JSONB,
// order_number уникален.
func NewOrderRepository(store *Store) *Collection[domain.Order] {
	return newCollection(store, table[domain.Order]{
		name: "orders",
		columns: []string{
			"id", "order_number", "number_degraded", "user_id", "shift_id", "location_id",
			"items", "subtotal", "discount", "total", "payment_method", "cost_total",
			"profit", "status", "created_at", "refunded_at", "refunded_by",
		},
		fields: map[string]string{
			domain.FieldID:          "id",
			domain.FieldOrderNumber: "order_number",
			domain.FieldUserID:      "user_id",
			domain.FieldShiftID:     "shift_id",
			domain.FieldLocationID:  "location_id",
			domain.FieldStatus:      "status",
			domain.FieldCreatedAt:   "created_at",
		},
		tiebreak:   "id",
		id:         func(o domain.Order) string { return o.ID },
		setID:      func(o *domain.Order, id string) { o.ID = id },
		version:    func(o domain.Order) int64 { return o.Version },
		setVersion: func(o *domain.Order, v int64) { o.Version = v },
		values: func(o domain.Order) ([]any, error) {
			items, err := json.Marshal(o.Items)
			if err != nil {
				return nil, err
			}
			return []any{
				o.ID, o.OrderNumber, o.NumberDegraded, o.UserID, o.ShiftID, o.LocationID,
				string(items), o.Subtotal, o.Discount, o.Total, string(o.PaymentMethod), o.CostTotal,
				o.Profit, string(o.Status), o.CreatedAt.UTC(), nullTime(o.RefundedAt), o.RefundedBy,
			}, nil
		},
		scan: func(row rowScanner) (domain.Order, error) {
			var (
				o          domain.Order
				items      []byte
				payment    string
				status     string
				refundedAt sql.NullTime
			)
			if err := row.Scan(
				&o.ID, &o.OrderNumber, &o.NumberDegraded, &o.UserID, &o.ShiftID, &o.LocationID,
				&items, &o.Subtotal, &o.Discount, &o.Total, &payment, &o.CostTotal,
				&o.Profit, &status, &o.CreatedAt, &refundedAt, &o.RefundedBy, &o.Version,
			); err != nil {
				return domain.Order{}, err
			}
			if err := json.Unmarshal(items, &o.Items); err != nil {
				return domain.Order{}, err
			}
			o.PaymentMethod = domain.PaymentMethod(payment)
			o.Status = domain.OrderStatus(status)
			o.CreatedAt = o.CreatedAt.UTC()
			o.RefundedAt = timePtr(refundedAt)
			return o, nil
		},
	})
}

// NewShiftRepository создаёт PostgreSQL-хранилище смен. Частичный уникальный
// индекс по user_id не даёт сохранить вторую активную смену.
func NewShiftRepository(store *Store) *Collection[domain.Shift] {
	return newCollection(store, table[domain.Shift]{
		name: "shifts",
		columns: []string{
			"id", "user_id", "location_id", "started_at", "ended_at", "status",
			"total_amount", "total_items", "sales", "closed_by", "edited_at", "edited_by",
		},
		fields: map[string]string{
			domain.FieldID:         "id",
			domain.FieldUserID:     "user_id",
			domain.FieldLocationID: "location_id",
			domain.FieldStatus:     "status",
			domain.FieldStart:      "started_at",
		},
		tiebreak:   "id",
		id:         func(s domain.Shift) string { return s.ID },
		setID:      func(s *domain.Shift, id string) { s.ID = id },
		version:    func(s domain.Shift) int64 { return s.Version },
		setVersion: func(s *domain.Shift, v int64) { s.Version = v },
		values: func(s domain.Shift) ([]any, error) {
			sales, err := json.Marshal(s.Sales)
			if err != nil {
				return nil, err
			}
			return []any{
				s.ID, s.UserID, s.LocationID, s.Start.UTC(), nullTime(s.End), string(s.Status),
				s.TotalAmount, s.TotalItems, string(sales), s.ClosedBy, nullTime(s.EditedAt), s.EditedBy,
			}, nil
		},
		scan: func(row rowScanner) (domain.Shift, error) {
			var (
				s        domain.Shift
				status   string
				sales    []byte
				end      sql.NullTime
				editedAt sql.NullTime
			)
			if err := row.Scan(
				&s.ID, &s.UserID, &s.LocationID, &s.Start, &end, &status,
				&s.TotalAmount, &s.TotalItems, &sales, &s.ClosedBy, &editedAt, &s.EditedBy, &s.Version,
			); err != nil {
				return domain.Shift{}, err
			}
			if err := json.Unmarshal(sales, &s.Sales); err != nil {
				return domain.Shift{}, err
			}
			s.Status = domain.ShiftStatus(status)
			s.Start = s.Start.UTC()
			s.End = timePtr(end)
			s.EditedAt = timePtr(editedAt)
			return s, nil
		},
	})
}

// NewWriteOffRepository создаёт PostgreSQL-хранилище списаний.
func NewWriteOffRepository(store *Store) *Collection[domain.WriteOff] {
	return newCollection(store, table[domain.WriteOff]{
		name: "write_offs",
		columns: []string{
			"id", "batch_id", "batch_number", "product_id", "location_id", "quantity",
			"unit_cost", "cost", "reason", "comment", "user_id", "created_at",
		},
		fields: map[string]string{
			domain.FieldID:         "id",
			domain.FieldBatchID:    "batch_id",
			domain.FieldProductID:  "product_id",
			domain.FieldLocationID: "location_id",
			domain.FieldUserID:     "user_id",
			domain.FieldCreatedAt:  "created_at",
		},
		tiebreak:   "id",
		id:         func(w domain.WriteOff) string { return w.ID },
		setID:      func(w *domain.WriteOff, id string) { w.ID = id },
		version:    func(domain.WriteOff) int64 { return 1 },
		setVersion: func(*domain.WriteOff, int64) {},
		values: func(w domain.WriteOff) ([]any, error) {
			return []any{
				w.ID, w.BatchID, w.BatchNumber, w.ProductID, w.LocationID, w.Quantity,
				w.UnitCost, w.Cost, w.Reason, w.Comment, w.UserID, w.CreatedAt.UTC(),
			}, nil
		},
		scan: func(row rowScanner) (domain.WriteOff, error) {
			var (
				w       domain.WriteOff
				version int64
			)
			if err := row.Scan(
				&w.ID, &w.BatchID, &w.BatchNumber, &w.ProductID, &w.LocationID, &w.Quantity,
				&w.UnitCost, &w.Cost, &w.Reason, &w.Comment, &w.UserID, &w.CreatedAt, &version,
			); err != nil {
				return domain.WriteOff{}, err
			}
			w.CreatedAt = w.CreatedAt.UTC()
			return w, nil
		},
	})
}

var (
	_ domain.BatchRepository    = (*Collection[domain.Batch])(nil)
	_ domain.OrderRepository    = (*Collection[domain.Order])(nil)
	_ domain.ShiftRepository    = (*Collection[domain.Shift])(nil)
	_ domain.WriteOffRepository = (*Collection[domain.WriteOff])(nil)
)

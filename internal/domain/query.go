package domain

import "context"

// Op задаёт оператор сравнения в фильтре Record Store.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpPrefix   Op = "prefix"
	OpContains Op = "contains"
)

// Condition описывает одно условие фильтра: поле, оператор, значение.
// Значения сравниваются по типу поля: string, int, int64, bool, time.Time, decimal.Decimal.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// SortKey задаёт поле сортировки.
type SortKey struct {
	Field string
	Desc  bool
}

// Query объединяет фильтр, сортировку и ограничение выборки.
// Limit <= 0 означает "без ограничения".
type Query struct {
	Where []Condition
	Sort  []SortKey
	Limit int
}

func Eq(field string, value any) Condition { return Condition{Field: field, Op: OpEq, Value: value} }
func Neq(field string, value any) Condition { return Condition{Field: field, Op: OpNeq, Value: value} }
func Gt(field string, value any) Condition { return Condition{Field: field, Op: OpGt, Value: value} }
func Gte(field string, value any) Condition { return Condition{Field: field, Op: OpGte, Value: value} }
func Lt(field string, value any) Condition { return Condition{Field: field, Op: OpLt, Value: value} }
func Lte(field string, value any) Condition { return Condition{Field: field, Op: OpLte, Value: value} }
func Prefix(field, value string) Condition { return Condition{Field: field, Op: OpPrefix, Value: value} }
func Contains(field, value string) Condition { return Condition{Field: field, Op: OpContains, Value: value} }
func Asc(field string) SortKey { return SortKey{Field: field} }
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }
func Where(conditions ...Condition) Query { return Query{Where: conditions} }

// OrderBy добавляет ключи сортировки.
func (q Query) OrderBy(keys ...SortKey) Query {
	q.Sort = append(q.Sort, keys...)
	return q
}

// WithLimit ограничивает число записей в выборке.
func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

// Collection описывает Record Store одной коллекции.
//
// Update применяет optimistic locking: версия записи должна совпадать с сохранённой,
// иначе возвращается ErrVersionConflict. Возвращённая запись содержит новую версию.
type Collection[T any] interface {
	List(ctx context.Context, q Query) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) (T, error)
	Delete(ctx context.Context, id string) error
}

// Имена полей, доступных для фильтрации и сортировки.
const (
	FieldID            = "id"
	FieldProductID     = "product_id"
	FieldLocationID    = "location_id"
	FieldQuantity      = "quantity"
	FieldReceptionDate = "reception_date"
	FieldBatchNumber   = "batch_number"
	FieldCreatedAt     = "created_at"
	FieldOrderNumber   = "order_number"
	FieldUserID        = "user_id"
	FieldStatus        = "status"
	FieldShiftID       = "shift_id"
	FieldBatchID       = "batch_id"
	FieldStart         = "start"
)

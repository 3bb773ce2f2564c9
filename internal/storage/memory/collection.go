package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// Schema описывает, как generic-коллекция работает с типом записи.
type Schema[T any] struct {
	Name       string
	ID         func(T) string
	SetID      func(*T, string)
	Version    func(T) int64
	SetVersion func(*T, int64)
	// Fields доступные для фильтрации и сортировки поля.
	Fields map[string]func(T) any
	// Unique уникальные индексы: пустой ключ в индекс не попадает.
	Unique map[string]func(T) string
	// Clone глубокая копия записи; nil означает, что достаточно копии по значению.
	Clone func(T) T
}

type entry[T any] struct {
	value T
	seq   uint64
}

// Collection in-memory реализация Record Store. Порядок вставки служит
// последним ключом сортировки, поэтому "порядок создания" детерминирован.
type Collection[T any] struct {
	mu     sync.RWMutex
	schema Schema[T]
	items  map[string]entry[T]
	seq    uint64
}

// NewCollection создаёт пустую коллекцию.
func NewCollection[T any](schema Schema[T]) *Collection[T] {
	return &Collection[T]{
		schema: schema,
		items:  make(map[string]entry[T]),
	}
}

// List возвращает записи, подходящие под фильтр, в заданном порядке.
func (c *Collection[T]) List(ctx context.Context, q domain.Query) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.validate(q); err != nil {
		return nil, err
	}

	c.mu.RLock()
	matched := make([]entry[T], 0, len(c.items))
	for _, e := range c.items {
		ok, err := c.matches(e.value, q.Where)
		if err != nil {
			c.mu.RUnlock()
			return nil, err
		}
		if ok {
			matched = append(matched, e)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	var sortErr error
	sort.SliceStable(matched, func(i, j int) bool {
		for _, key := range q.Sort {
			get := c.schema.Fields[key.Field]
			cmp, err := compare(get(matched[i].value), get(matched[j].value))
			if err != nil {
				sortErr = err
				return false
			}
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, fmt.Errorf("memory %s: sort: %w", c.schema.Name, sortErr)
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	result := make([]T, 0, len(matched))
	for _, e := range matched {
		result = append(result, c.clone(e.value))
	}
	return result, nil
}

// Get возвращает запись или ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[id]
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", c.schema.Name, id, domain.ErrNotFound)
	}
	return c.clone(e.value), nil
}

// Create сохраняет новую запись с версией 1. Пустой ID заполняется UUID.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.schema.ID(record)
	if id == "" {
		id = uuid.NewString()
		c.schema.SetID(&record, id)
	}
	if _, exists := c.items[id]; exists {
		return zero, fmt.Errorf("%s %s: %w", c.schema.Name, id, domain.ErrDuplicate)
	}
	if err := c.checkUnique(record, id); err != nil {
		return zero, err
	}

	c.schema.SetVersion(&record, 1)
	c.seq++
	c.items[id] = entry[T]{value: c.clone(record), seq: c.seq}
	return c.clone(record), nil
}

// Update заменяет запись, если её версия совпадает с сохранённой.
func (c *Collection[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.schema.ID(record)
	existing, ok := c.items[id]
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", c.schema.Name, id, domain.ErrNotFound)
	}
	if c.schema.Version(existing.value) != c.schema.Version(record) {
		return zero, fmt.Errorf("%s %s: %w", c.schema.Name, id, domain.ErrVersionConflict)
	}
	if err := c.checkUnique(record, id); err != nil {
		return zero, err
	}

	c.schema.SetVersion(&record, c.schema.Version(record)+1)
	c.items[id] = entry[T]{value: c.clone(record), seq: existing.seq}
	return c.clone(record), nil
}

// Delete удаляет запись или возвращает ErrNotFound.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; !ok {
		return fmt.Errorf("%s %s: %w", c.schema.Name, id, domain.ErrNotFound)
	}
	delete(c.items, id)
	return nil
}

// Len количество записей (используется в тестах).
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) checkUnique(record T, id string) error {
	for index, key := range c.schema.Unique {
		value := key(record)
		if value == "" {
			continue
		}
		for otherID, e := range c.items {
			if otherID != id && key(e.value) == value {
				return fmt.Errorf("%s %s=%s: %w", c.schema.Name, index, value, domain.ErrDuplicate)
			}
		}
	}
	return nil
}

func (c *Collection[T]) validate(q domain.Query) error {
	for _, cond := range q.Where {
		if _, ok := c.schema.Fields[cond.Field]; !ok {
			return fmt.Errorf("memory %s: unknown filter field %q", c.schema.Name, cond.Field)
		}
	}
	for _, key := range q.Sort {
		if _, ok := c.schema.Fields[key.Field]; !ok {
			return fmt.Errorf("memory %s: unknown sort field %q", c.schema.Name, key.Field)
		}
	}
	return nil
}

func (c *Collection[T]) matches(record T, where []domain.Condition) (bool, error) {
	for _, cond := range where {
		ok, err := evaluate(c.schema.Fields[cond.Field](record), cond)
		if err != nil {
			return false, fmt.Errorf("memory %s: field %s: %w", c.schema.Name, cond.Field, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Collection[T]) clone(record T) T {
	if c.schema.Clone == nil {
		return record
	}
	return c.schema.Clone(record)
}

func evaluate(actual any, cond domain.Condition) (bool, error) {
	switch cond.Op {
	case domain.OpPrefix, domain.OpContains:
		s, ok := normalize(actual).(string)
		if !ok {
			return false, fmt.Errorf("%s requires a string field", cond.Op)
		}
		pattern, ok := normalize(cond.Value).(string)
		if !ok {
			return false, fmt.Errorf("%s requires a string value", cond.Op)
		}
		if cond.Op == domain.OpPrefix {
			return strings.HasPrefix(s, pattern), nil
		}
		return strings.Contains(s, pattern), nil
	}

	cmp, err := compare(actual, cond.Value)
	if err != nil {
		return false, err
	}
	switch cond.Op {
	case domain.OpEq:
		return cmp == 0, nil
	case domain.OpNeq:
		return cmp != 0, nil
	case domain.OpGt:
		return cmp > 0, nil
	case domain.OpGte:
		return cmp >= 0, nil
	case domain.OpLt:
		return cmp < 0, nil
	case domain.OpLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", cond.Op)
	}
}

// compare сравнивает значения одного типа. Именованные строковые и целые
// типы приводятся к string и int64.
func compare(a, b any) (int, error) {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		return strings.Compare(av, bv), nil
	case int64:
		bv, ok := b.(int64)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		}
		return 0, nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		}
		return 1, nil
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		return av.Compare(bv), nil
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		return av.Cmp(bv), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", a)
	}
}

func normalize(v any) any {
	switch v.(type) {
	case string, int64, bool, time.Time, decimal.Decimal:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint())
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

func typeMismatch(a, b any) error {
	return fmt.Errorf("cannot compare %T with %T", a, b)
}

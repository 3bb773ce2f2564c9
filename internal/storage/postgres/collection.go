package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

const opTimeout = 5 * time.Second

type rowScanner interface {
	Scan(dest ...any) error
}

// table описывает отображение записи на таблицу.
type table[T any] struct {
	name string
	// columns записываемые колонки; первая всегда id. version в список не входит.
	columns []string
	// fields whitelist полей фильтрации и сортировки: поле → колонка.
	fields map[string]string
	// tiebreak последний ключ сортировки, делает порядок детерминированным.
	tiebreak   string
	id         func(T) string
	setID      func(*T, string)
	version    func(T) int64
	setVersion func(*T, int64)
	values     func(T) ([]any, error)
	// scan читает columns и затем version.
	scan func(rowScanner) (T, error)
}

// Collection PostgreSQL-реализация Record Store поверх одной таблицы.
type Collection[T any] struct {
	db *sql.DB
	t  table[T]
}

func newCollection[T any](store *Store, t table[T]) *Collection[T] {
	return &Collection[T]{db: store.DB(), t: t}
}

func (c *Collection[T]) selectColumns() []string {
	return append(append([]string(nil), c.t.columns...), "version")
}

// List выполняет запрос с фильтрами и сортировкой.
func (c *Collection[T]) List(ctx context.Context, q domain.Query) ([]T, error) {
	query, args, err := selectQuery(c.t.name, c.selectColumns(), c.t.fields, c.t.tiebreak, q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.t.name, err)
	}
	defer rows.Close()

	result := make([]T, 0)
	for rows.Next() {
		record, err := c.t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", c.t.name, err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", c.t.name, err)
	}
	return result, nil
}

// Get возвращает запись по id или domain.ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", strings.Join(c.selectColumns(), ", "), c.t.name)
	record, err := c.t.scan(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("%s %s: %w", c.t.name, id, domain.ErrNotFound)
		}
		return zero, fmt.Errorf("select %s: %w", c.t.name, err)
	}
	return record, nil
}

// Create вставляет запись с версией 1.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if c.t.id(record) == "" {
		c.t.setID(&record, uuid.NewString())
	}
	c.t.setVersion(&record, 1)

	values, err := c.t.values(record)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", c.t.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := fmt.Sprintf("INSERT INTO %s (%s, version) VALUES (%s, 1)",
		c.t.name, strings.Join(c.t.columns, ", "), placeholders(1, len(c.t.columns)))
	if _, err := c.db.ExecContext(ctx, query, values...); err != nil {
		if isUniqueViolation(err) {
			return zero, fmt.Errorf("%s %s: %w", c.t.name, c.t.id(record), domain.ErrDuplicate)
		}
		return zero, fmt.Errorf("insert %s: %w", c.t.name, err)
	}
	return record, nil
}

// Update перезаписывает запись при совпадении версии и увеличивает её.
func (c *Collection[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	values, err := c.t.values(record)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", c.t.name, err)
	}

	sets := make([]string, 0, len(c.t.columns))
	for i, column := range c.t.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i+1))
	}
	args := append(values[1:], c.t.id(record), c.t.version(record))
	query := fmt.Sprintf("UPDATE %s SET %s, version = version + 1 WHERE id = $%d AND version = $%d",
		c.t.name, strings.Join(sets, ", "), len(args)-1, len(args))

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return zero, fmt.Errorf("%s %s: %w", c.t.name, c.t.id(record), domain.ErrDuplicate)
		}
		return zero, fmt.Errorf("update %s: %w", c.t.name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return zero, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := c.exists(ctx, c.t.id(record))
		if err != nil {
			return zero, err
		}
		if !exists {
			return zero, fmt.Errorf("%s %s: %w", c.t.name, c.t.id(record), domain.ErrNotFound)
		}
		return zero, fmt.Errorf("%s %s: %w", c.t.name, c.t.id(record), domain.ErrVersionConflict)
	}

	c.t.setVersion(&record, c.t.version(record)+1)
	return record, nil
}

// Delete удаляет запись или возвращает domain.ErrNotFound.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.t.name), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.t.name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", c.t.name, id, domain.ErrNotFound)
	}
	return nil
}

func (c *Collection[T]) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = $1", c.t.name), id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check %s exists: %w", c.t.name, err)
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

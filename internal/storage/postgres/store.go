// Package postgres хранит партии, заказы, смены, списания, outbox и журнал
// аудита в PostgreSQL через database/sql поверх драйвера pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultApplicationName = "ledger-service"
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// Store пул подключений к базе учёта.
type Store struct {
	db *sql.DB
}

type storeOptions struct {
	applicationName string
	maxOpenConns    int
}

// StoreOption настраивает подключение.
type StoreOption func(*storeOptions)

// WithApplicationName задаёт application_name, видимый в pg_stat_activity.
func WithApplicationName(name string) StoreOption {
	return func(o *storeOptions) {
		if name != "" {
			o.applicationName = name
		}
	}
}

// WithMaxOpenConns ограничивает размер пула. Блокировки по ключам держат
// отдельное соединение на время критической секции, пул должен это вмещать.
func WithMaxOpenConns(n int) StoreOption {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// Open разбирает DSN, открывает пул и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	options := storeOptions{applicationName: defaultApplicationName, maxOpenConns: defaultMaxOpenConns}
	for _, opt := range opts {
		opt(&options)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = options.applicationName
	}
	connConfig.ConnectTimeout = defaultConnTimeout

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(options.maxOpenConns)
	db.SetMaxIdleConns(options.maxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB нужен репозиториям и тестам.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health check'ом /healthz.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул. Повторный вызов и nil-store безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

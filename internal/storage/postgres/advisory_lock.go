package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/lock"
)

const defaultAdvisoryRetryDelay = 20 * time.Millisecond

// AdvisoryOption настраивает AdvisoryLocker.
type AdvisoryOption func(*AdvisoryLocker)

// WithAdvisoryRetryDelay задаёт паузу между попытками захвата.
func WithAdvisoryRetryDelay(delay time.Duration) AdvisoryOption {
	return func(l *AdvisoryLocker) {
		if delay > 0 {
			l.retryDelay = delay
		}
	}
}

// AdvisoryLocker сериализует операции через pg_try_advisory_lock.
//
// Захваченная блокировка держит одно соединение пула до Unlock: session-level
// lock снимается тем же соединением. Ожидающий вызов соединение не держит,
// между попытками оно возвращается в пул. Поэтому пул должен вмещать
// блокировки всех одновременно работающих держателей плюс их запросы
// (до трёх соединений на Receive: счётчик партий, остаток, запрос).
type AdvisoryLocker struct {
	db         *sql.DB
	logger     *log.Entry
	retryDelay time.Duration
}

// NewAdvisoryLocker создаёт Locker поверх PostgreSQL.
func NewAdvisoryLocker(store *Store, logger *log.Entry, opts ...AdvisoryOption) *AdvisoryLocker {
	if logger == nil {
		logger = log.WithField("component", "pg-advisory-lock")
	}
	l := &AdvisoryLocker{db: store.DB(), logger: logger, retryDelay: defaultAdvisoryRetryDelay}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock повторяет попытки до захвата ключа или отмены ctx.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	for {
		conn, acquired, err := l.tryLock(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if acquired {
			return l.unlockFunc(conn, key), nil
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryLock берёт соединение только на время попытки. Если ключ занят,
// соединение сразу возвращается в пул.
func (l *AdvisoryLocker) tryLock(ctx context.Context, key string) (*sql.Conn, bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtextextended($1, 0))", key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("advisory lock %s: %w", key, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}
	return conn, true, nil
}

func (l *AdvisoryLocker) unlockFunc(conn *sql.Conn, key string) lock.Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if _, err := conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock(hashtextextended($1, 0))", key); err != nil {
				l.logger.WithError(err).WithField("key", key).Warn("advisory unlock failed, dropping connection")
				// сессия с неснятой блокировкой не должна вернуться в пул
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}
}

var _ lock.Locker = (*AdvisoryLocker)(nil)

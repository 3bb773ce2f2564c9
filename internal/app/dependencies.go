package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	healthcheck "github.com/alcosklad/alcoapp-sub000/internal/health"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
	"github.com/alcosklad/alcoapp-sub000/internal/storage/memory"
	"github.com/alcosklad/alcoapp-sub000/internal/storage/postgres"
)

// outboxStore outbox с поддержкой очистки опубликованных событий.
type outboxStore interface {
	domain.OutboxRepository
	domain.OutboxPurger
}

// runtimeDependencies хранилища и блокировки, выбранные конфигурацией.
type runtimeDependencies struct {
	batches   domain.BatchRepository
	orders    domain.OrderRepository
	shifts    domain.ShiftRepository
	writeOffs domain.WriteOffRepository
	outbox    outboxStore
	audit     domain.AuditRepository
	directory domain.LocationDirectory
	locker    lock.Locker

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

// initRuntimeDependencies открывает хранилище и блокировки. При ошибке уже
// открытые ресурсы закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (_ *runtimeDependencies, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	defer func() {
		if err != nil {
			if closeErr := deps.close(); closeErr != nil {
				logger.WithError(closeErr).Warn("failed to close dependencies after init error")
			}
		}
	}()

	var store *postgres.Store
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.batches = memory.NewBatchRepository()
		deps.orders = memory.NewOrderRepository()
		deps.shifts = memory.NewShiftRepository()
		deps.writeOffs = memory.NewWriteOffRepository()
		deps.outbox = memory.NewOutboxRepository()
		deps.audit = memory.NewAuditRepository()
		deps.directory = memory.NewDirectory(cfg.WorkerLocations)
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		store, err = postgres.Open(ctx, cfg.PostgresDSN, postgres.WithApplicationName("ledger-service"))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}

		directory := postgres.NewDirectory(store)
		for userID, location := range cfg.WorkerLocations {
			if err := directory.Assign(ctx, userID, location); err != nil {
				return nil, fmt.Errorf("assign location for %s: %w", userID, err)
			}
		}

		deps.batches = postgres.NewBatchRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.shifts = postgres.NewShiftRepository(store)
		deps.writeOffs = postgres.NewWriteOffRepository(store)
		deps.outbox = postgres.NewOutboxRepository(store)
		deps.audit = postgres.NewAuditRepository(store)
		deps.directory = directory
		deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.LockDriver {
	case LockDriverLocal:
		deps.locker = lock.NewKeyed()
	case LockDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		deps.closers = append(deps.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		redisLocker := lock.NewRedis(client,
			lock.WithTTL(cfg.LockTTL),
			lock.WithRedisLogger(logger.WithField("component", "redis-lock")),
		)
		deps.locker = redisLocker
		deps.checkers["redis"] = healthcheck.NewPingChecker("redis", redisLocker)
	case LockDriverPostgres:
		if store == nil {
			return nil, errors.New("postgres lock requires postgres storage")
		}
		deps.locker = postgres.NewAdvisoryLocker(store, logger.WithField("component", "advisory-lock"))
	default:
		return nil, fmt.Errorf("unsupported lock driver %q", cfg.LockDriver)
	}
	logger.WithField("lock_driver", cfg.LockDriver).Info("locker initialized")

	return deps, nil
}

// close закрывает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Package retention очищает outbox от давно опубликованных событий.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultRetention = 72 * time.Hour
	defaultBatchSize = 500
)

var (
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outbox_cleanup_runs_total",
		Help: "Total number of outbox cleanup runs grouped by result.",
	}, []string{"result"})
	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_outbox_cleanup_deleted_total",
		Help: "Total number of purged published outbox messages.",
	})
	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outbox_cleanup_last_deleted",
		Help: "Number of purged messages during the last cleanup run.",
	})
)

// Options параметры воркера очистки.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
	Now       func() time.Time
}

// Option настраивает OutboxCleaner.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт паузу между циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithRetention задаёт, сколько хранить опубликованные события.
func WithRetention(retention time.Duration) Option {
	return func(opts *Options) {
		opts.Retention = retention
	}
}

// WithBatchSize задаёт размер одного удаления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// OutboxCleaner периодически удаляет события, опубликованные раньше,
// чем Retention назад. Pending и failed события не трогает.
type OutboxCleaner struct {
	repo      domain.OutboxPurger
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewOutboxCleaner создаёт воркер очистки.
func NewOutboxCleaner(repo domain.OutboxPurger, options ...Option) *OutboxCleaner {
	opts := Options{
		Interval:  defaultInterval,
		Retention: defaultRetention,
		BatchSize: defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleanup")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &OutboxCleaner{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// Run очищает outbox сразу и затем каждые interval до отмены ctx.
func (c *OutboxCleaner) Run(ctx context.Context) {
	if c.repo == nil {
		c.logger.Warn("outbox cleanup is disabled: repository does not support purge")
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *OutboxCleaner) cleanup(ctx context.Context) {
	deleted, err := c.Purge(ctx, c.now().Add(-c.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		cleanupRunsTotal.WithLabelValues("error").Inc()
		c.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	cleanupRunsTotal.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// Purge удаляет опубликованные события с отметкой не позже before порциями batchSize.
func (c *OutboxCleaner) Purge(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := c.repo.DeleteSentBefore(ctx, before, c.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted > 0 {
			cleanupDeletedTotal.Add(float64(deleted))
		}
		if deleted < c.batchSize {
			return total, nil
		}
	}
}

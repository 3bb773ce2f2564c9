// Package outbox доставляет события учёта из outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultMaxFailedPolls = 5
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outbox_publish_attempts_total",
		Help: "Outbox publish attempts by result.",
	}, []string{"result"})
	publishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outbox_published_events_total",
		Help: "Ledger events delivered to the broker by event type.",
	}, []string{"event_type"})
	deferredEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_outbox_deferred_events_total",
		Help: "Events left pending because an earlier event of the same aggregate was not delivered.",
	})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outbox_pending_records",
		Help: "Pending ledger events in the outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record.",
	})
)

// WorkerOptions параметры доставки.
type WorkerOptions struct {
	Logger         *log.Entry
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	MaxFailedPolls int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts число попыток публикации события внутри одного цикла.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithMaxFailedPolls число циклов подряд, в которых событие не удалось
// доставить, после чего оно помечается failed и перестаёт держать агрегат.
func WithMaxFailedPolls(polls int) Option {
	return func(opts *WorkerOptions) { opts.MaxFailedPolls = polls }
}

// WithRetryBaseDelay базовая задержка экспоненциального backoff между попытками.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// BatchResult итог одного цикла доставки.
type BatchResult struct {
	Sent     int
	Failed   int
	Retained int
	Deferred int
}

// Worker публикует события в порядке постановки в outbox. Пока событие
// агрегата (заказа, смены, партии) не доставлено, следующие события того же
// агрегата остаются pending: потребитель не увидит возврат раньше продажи.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	logger    *log.Entry
	opts      WorkerOptions

	// failedPolls счётчик неудачных циклов по id события; доступ только из Run.
	failedPolls map[string]int
}

// NewWorker создаёт воркер. Без publisher воркер выключен.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		MaxFailedPolls: defaultMaxFailedPolls,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.MaxFailedPolls <= 0 {
		opts.MaxFailedPolls = defaultMaxFailedPolls
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:        repo,
		publisher:   publisher,
		logger:      opts.Logger,
		opts:        opts,
		failedPolls: make(map[string]int),
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce доставляет одну пачку pending-событий.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}
	defer w.refreshBacklogMetrics(ctx)

	pending, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	blocked := make(map[string]struct{})
	for _, event := range pending {
		if ctx.Err() != nil {
			return result
		}

		key := event.AggregateType + "/" + event.AggregateID
		if _, ok := blocked[key]; ok {
			result.Deferred++
			deferredEvents.Inc()
			continue
		}

		fields := log.Fields{"outbox_id": event.ID, "event_type": event.EventType, "aggregate": key}
		if err := w.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				// остановка: событие остаётся pending до следующего запуска
				return result
			}
			publishAttempts.WithLabelValues("failed").Inc()

			w.failedPolls[event.ID]++
			if w.failedPolls[event.ID] < w.opts.MaxFailedPolls {
				blocked[key] = struct{}{}
				result.Retained++
				w.logger.WithError(err).WithFields(fields).Warn("outbox event not delivered, aggregate held")
				continue
			}

			delete(w.failedPolls, event.ID)
			result.Failed++
			w.logger.WithError(err).WithFields(fields).Error("outbox event marked failed, later events of the aggregate proceed")
			if markErr := w.repo.MarkFailed(ctx, event.ID); markErr != nil {
				w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox as failed")
				blocked[key] = struct{}{}
			}
			continue
		}

		delete(w.failedPolls, event.ID)
		result.Sent++
		publishedEvents.WithLabelValues(event.EventType).Inc()
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			// повторная публикация при следующем опросе лучше пропуска
			w.logger.WithError(err).WithFields(fields).Warn("failed to mark outbox as sent")
			blocked[key] = struct{}{}
		}
	}
	return result
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(event); lastErr == nil {
			publishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		publishAttempts.WithLabelValues("retry_error").Inc()
		if attempt == w.opts.MaxAttempts {
			break
		}

		if delay := w.retryBackoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.opts.MaxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

// retryBackoff base * 2^(attempt-1) с насыщением.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	delay := w.opts.RetryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if delay > time.Duration(1<<62) {
			return time.Duration(1<<63 - 1)
		}
		delay *= 2
	}
	return delay
}

// Package ledger ведёт партии товара: FIFO-списание при продаже, зачисление
// при возврате и компенсации, приёмку и списание брака.
//
// Все изменения остатков по паре (товар, точка) выполняются под блокировкой
// lock.StockKey, поэтому сумма остатков никогда не уходит в минус и одна
// единица не может быть продана дважды.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
	"github.com/alcosklad/alcoapp-sub000/internal/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 10 * time.Millisecond
)

// BatchNumberer выдаёт номер партии и держит блокировку счётчика, пока fn
// сохраняет партии с этим номером.
type BatchNumberer interface {
	ReserveBatchNumber(ctx context.Context, locationName string, date time.Time, fn func(domain.SequenceNumber) error) error
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithBatchNumberer подключает генератор номеров партий для Receive.
func WithBatchNumberer(numbers BatchNumberer) Option {
	return func(l *Ledger) {
		l.numbers = numbers
	}
}

// WithWriteOffRepository подключает хранилище списаний для WriteOff.
func WithWriteOffRepository(repo domain.WriteOffRepository) Option {
	return func(l *Ledger) {
		l.writeOffs = repo
	}
}

// WithEvents публикует события приёмки и списания.
func WithEvents(emitter *events.Emitter) Option {
	return func(l *Ledger) {
		l.events = emitter
	}
}

// WithRetry задаёт число попыток и базовую задержку при конфликте версий.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(l *Ledger) {
		if maxAttempts > 0 {
			l.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			l.retryBaseDelay = baseDelay
		}
	}
}

// Ledger складской журнал партий.
type Ledger struct {
	batches        domain.BatchRepository
	writeOffs      domain.WriteOffRepository
	locker         lock.Locker
	numbers        BatchNumberer
	events         *events.Emitter
	logger         *log.Entry
	metrics        *metrics.LedgerMetrics
	now            func() time.Time
	maxAttempts    int
	retryBaseDelay time.Duration
}

// New создаёт Ledger поверх хранилища партий и блокировок.
func New(batches domain.BatchRepository, locker lock.Locker, opts ...Option) *Ledger {
	l := &Ledger{
		batches:        batches,
		locker:         locker,
		logger:         log.WithField("component", "ledger"),
		now:            func() time.Time { return time.Now().UTC() },
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListConsumable возвращает партии с остатком > 0 в порядке FIFO: по дате
// приёмки, при равных датах по порядку создания.
func (l *Ledger) ListConsumable(ctx context.Context, productID, locationID string) ([]domain.Batch, error) {
	batches, err := l.batches.List(ctx, domain.Where(
		domain.Eq(domain.FieldProductID, productID),
		domain.Eq(domain.FieldLocationID, locationID),
		domain.Gt(domain.FieldQuantity, 0),
	).OrderBy(
		domain.Asc(domain.FieldReceptionDate),
		domain.Asc(domain.FieldCreatedAt),
	))
	if err != nil {
		return nil, fmt.Errorf("list consumable batches: %w", err)
	}
	return batches, nil
}

// Consume списывает qty единиц по FIFO. Если суммарного остатка не хватает,
// возвращает *domain.InsufficientStockError и ничего не меняет.
func (l *Ledger) Consume(ctx context.Context, productID, locationID string, qty int) (domain.ConsumptionPlan, error) {
	if productID == "" {
		return domain.ConsumptionPlan{}, domain.ErrProductRequired
	}
	if qty <= 0 {
		return domain.ConsumptionPlan{}, domain.ErrInvalidQuantity
	}

	started := time.Now()
	plan, err := l.consume(ctx, productID, locationID, qty)
	l.metrics.ObserveConsume(resultLabel(err), time.Since(started))
	return plan, err
}

func (l *Ledger) consume(ctx context.Context, productID, locationID string, qty int) (domain.ConsumptionPlan, error) {
	unlock, err := l.locker.Lock(ctx, lock.StockKey(productID, locationID))
	if err != nil {
		return domain.ConsumptionPlan{}, fmt.Errorf("lock stock %s/%s: %w", productID, locationID, err)
	}
	defer unlock()

	var plan domain.ConsumptionPlan
	err = l.withRetry(ctx, "consume", func() error {
		batches, err := l.ListConsumable(ctx, productID, locationID)
		if err != nil {
			return err
		}
		steps, err := planFIFO(batches, qty)
		if err != nil {
			var shortage *domain.InsufficientStockError
			if errors.As(err, &shortage) {
				shortage.ProductID = productID
				shortage.LocationID = locationID
			}
			return err
		}
		if err := l.apply(ctx, steps); err != nil {
			return err
		}
		plan = planFromSteps(productID, locationID, qty, steps)
		return nil
	})
	if err != nil {
		return domain.ConsumptionPlan{}, err
	}

	l.logger.WithFields(log.Fields{
		"product_id":  productID,
		"location_id": locationID,
		"quantity":    qty,
		"batches":     plan.BatchNumbers(),
	}).Debug("stock consumed")
	return plan, nil
}

// CreditInput параметры зачисления товара обратно в партию.
type CreditInput struct {
	ProductID   string
	LocationID  string
	Quantity    int
	UnitCost    decimal.Decimal
	BatchNumber string
	// BatchID исходная партия, если известна.
	BatchID string
	// Restore используется компенсацией: если исходной партии уже нет, она
	// создаётся заново с тем же ID, датой приёмки ReceptionDate и моментом
	// создания CreatedAt, чтобы не сдвинуться в очереди FIFO.
	Restore       bool
	ReceptionDate time.Time
	CreatedAt     time.Time
}

// Credit возвращает товар в существующую партию (по ID или номеру партии)
// или создаёт новую партию, датированную сегодняшним днём.
func (l *Ledger) Credit(ctx context.Context, in CreditInput) (domain.Batch, error) {
	if in.ProductID == "" {
		return domain.Batch{}, domain.ErrProductRequired
	}
	if in.Quantity <= 0 {
		return domain.Batch{}, domain.ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return domain.Batch{}, domain.ErrInvalidCost
	}

	unlock, err := l.locker.Lock(ctx, lock.StockKey(in.ProductID, in.LocationID))
	if err != nil {
		return domain.Batch{}, fmt.Errorf("lock stock %s/%s: %w", in.ProductID, in.LocationID, err)
	}
	defer unlock()

	var result domain.Batch
	target := "existing"
	err = l.withRetry(ctx, "credit", func() error {
		existing, found, err := l.findCreditTarget(ctx, in)
		if err != nil {
			return err
		}
		if found {
			existing.Quantity += in.Quantity
			result, err = l.batches.Update(ctx, existing)
			if err != nil {
				return fmt.Errorf("update batch %s: %w", existing.ID, err)
			}
			target = "existing"
			return nil
		}

		now := l.now()
		batch := domain.Batch{
			ProductID:     in.ProductID,
			LocationID:    in.LocationID,
			Quantity:      in.Quantity,
			UnitCost:      in.UnitCost,
			ReceptionDate: startOfDay(now),
			BatchNumber:   in.BatchNumber,
			CreatedAt:     now,
		}
		if in.Restore {
			batch.ID = in.BatchID
			if !in.ReceptionDate.IsZero() {
				batch.ReceptionDate = in.ReceptionDate
			}
			if !in.CreatedAt.IsZero() {
				batch.CreatedAt = in.CreatedAt
			}
		}
		result, err = l.batches.Create(ctx, batch)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return fmt.Errorf("%w: %w", domain.ErrVersionConflict, err)
			}
			return fmt.Errorf("create batch: %w", err)
		}
		target = "created"
		return nil
	})
	if err != nil {
		return domain.Batch{}, err
	}

	l.metrics.RecordCredit(target)
	l.logger.WithFields(log.Fields{
		"product_id":   in.ProductID,
		"location_id":  in.LocationID,
		"quantity":     in.Quantity,
		"batch_id":     result.ID,
		"batch_number": result.BatchNumber,
		"target":       target,
	}).Debug("stock credited")
	return result, nil
}

func (l *Ledger) findCreditTarget(ctx context.Context, in CreditInput) (domain.Batch, bool, error) {
	if in.BatchID != "" {
		batch, err := l.batches.Get(ctx, in.BatchID)
		switch {
		case err == nil:
			if batch.ProductID == in.ProductID && batch.LocationID == in.LocationID {
				return batch, true, nil
			}
		case !domain.IsNotFound(err):
			return domain.Batch{}, false, fmt.Errorf("get batch %s: %w", in.BatchID, err)
		}
	}
	if in.BatchNumber == "" {
		return domain.Batch{}, false, nil
	}

	matches, err := l.batches.List(ctx, domain.Where(
		domain.Eq(domain.FieldProductID, in.ProductID),
		domain.Eq(domain.FieldLocationID, in.LocationID),
		domain.Eq(domain.FieldBatchNumber, in.BatchNumber),
	).OrderBy(domain.Asc(domain.FieldCreatedAt)).WithLimit(1))
	if err != nil {
		return domain.Batch{}, false, fmt.Errorf("find batch %s: %w", in.BatchNumber, err)
	}
	if len(matches) == 0 {
		return domain.Batch{}, false, nil
	}
	return matches[0], true, nil
}

// Available суммарный остаток по паре (товар, точка). Чтение без блокировки.
func (l *Ledger) Available(ctx context.Context, productID, locationID string) (int, error) {
	batches, err := l.ListConsumable(ctx, productID, locationID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range batches {
		total += b.Quantity
	}
	return total, nil
}

// StockCost средневзвешенная себестоимость текущего остатка.
func (l *Ledger) StockCost(ctx context.Context, productID, locationID string) (decimal.Decimal, error) {
	batches, err := l.ListConsumable(ctx, productID, locationID)
	if err != nil {
		return decimal.Zero, err
	}
	portions := make([]domain.BatchPortion, 0, len(batches))
	for _, b := range batches {
		portions = append(portions, domain.BatchPortion{Quantity: b.Quantity, UnitCost: b.UnitCost})
	}
	return domain.WeightedUnitCost(portions), nil
}

// History текущие партии товара в порядке приёмки, старые первыми. Пустой
// locationID означает все точки.
func (l *Ledger) History(ctx context.Context, productID, locationID string) ([]domain.Batch, error) {
	conditions := []domain.Condition{domain.Eq(domain.FieldProductID, productID)}
	if locationID != "" {
		conditions = append(conditions, domain.Eq(domain.FieldLocationID, locationID))
	}
	batches, err := l.batches.List(ctx, domain.Where(conditions...).OrderBy(
		domain.Asc(domain.FieldReceptionDate),
		domain.Asc(domain.FieldCreatedAt),
	))
	if err != nil {
		return nil, fmt.Errorf("list batch history: %w", err)
	}
	return batches, nil
}

// withRetry повторяет fn при конфликте версий с exponential backoff.
func (l *Ledger) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !domain.IsVersionConflict(err) {
			return err
		}
		if attempt == l.maxAttempts {
			break
		}

		l.logger.WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Warn("version conflict detected, retrying")

		delay := l.retryBaseDelay * time.Duration(1<<uint(attempt-1))
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ResultInsufficient
	case domain.IsVersionConflict(err):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

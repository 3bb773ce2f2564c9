// Package sequence выдаёт человекочитаемые номера заказов и партий по точке.
//
// Счётчик не хранится отдельно: следующий номер вычисляется как максимум по
// префиксу плюс один. Вычисление и сохранение записи с номером выполняются под
// блокировкой ключа точки (и дня для партий), поэтому два вызова не получат
// одинаковый номер. Если хранилище недоступно, номер строится из времени и
// помечается как деградированный.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
	"github.com/alcosklad/alcoapp-sub000/internal/metrics"
)

const (
	kindOrder = "order"
	kindBatch = "batch"
)

// CodeTable отображает название точки в однобуквенный код.
type CodeTable interface {
	Code(name string) (string, error)
}

// Option настраивает Generator.
type Option func(*Generator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics включает учёт выданных и деградированных номеров.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// WithClock подменяет источник времени для фоллбэка.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// Generator генератор номеров.
type Generator struct {
	codes   CodeTable
	orders  domain.OrderRepository
	batches domain.BatchRepository
	locker  lock.Locker
	logger  *log.Entry
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// New создаёт генератор поверх таблицы кодов и хранилищ заказов и партий.
func New(codes CodeTable, orders domain.OrderRepository, batches domain.BatchRepository, locker lock.Locker, opts ...Option) *Generator {
	g := &Generator{
		codes:   codes,
		orders:  orders,
		batches: batches,
		locker:  locker,
		logger:  log.WithField("component", "sequence"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LocationCode однобуквенный код точки или *domain.UnknownLocationError.
func (g *Generator) LocationCode(locationName string) (string, error) {
	return g.codes.Code(locationName)
}

// NextOrderNumber возвращает следующий номер заказа точки. Блокировка
// снимается до возврата, поэтому вызывающий код сам отвечает за гонку
// между выдачей и сохранением; для атомарной пары используйте ReserveOrderNumber.
func (g *Generator) NextOrderNumber(ctx context.Context, locationName string) (domain.SequenceNumber, error) {
	var number domain.SequenceNumber
	err := g.ReserveOrderNumber(ctx, locationName, func(n domain.SequenceNumber) error {
		number = n
		return nil
	})
	return number, err
}

// ReserveOrderNumber выдаёт номер и держит блокировку счётчика, пока fn
// сохраняет заказ. Ошибка fn возвращается без изменений.
func (g *Generator) ReserveOrderNumber(ctx context.Context, locationName string, fn func(domain.SequenceNumber) error) error {
	code, err := g.codes.Code(locationName)
	if err != nil {
		return err
	}

	unlock, err := g.locker.Lock(ctx, lock.OrderSequenceKey(code))
	if err != nil {
		return fmt.Errorf("lock order sequence %s: %w", code, err)
	}
	defer unlock()

	number, err := g.nextOrder(ctx, code)
	if err != nil {
		return err
	}
	g.observe(kindOrder, locationName, number)
	return fn(number)
}

// NextBatchNumber возвращает следующий номер партии точки за день date.
func (g *Generator) NextBatchNumber(ctx context.Context, locationName string, date time.Time) (domain.SequenceNumber, error) {
	var number domain.SequenceNumber
	err := g.ReserveBatchNumber(ctx, locationName, date, func(n domain.SequenceNumber) error {
		number = n
		return nil
	})
	return number, err
}

// ReserveBatchNumber выдаёт номер партии и держит блокировку дня, пока fn
// сохраняет партии приёмки.
func (g *Generator) ReserveBatchNumber(ctx context.Context, locationName string, date time.Time, fn func(domain.SequenceNumber) error) error {
	code, err := g.codes.Code(locationName)
	if err != nil {
		return err
	}

	unlock, err := g.locker.Lock(ctx, lock.BatchSequenceKey(code, date.Format(dateLayout)))
	if err != nil {
		return fmt.Errorf("lock batch sequence %s: %w", code, err)
	}
	defer unlock()

	number, err := g.nextBatch(ctx, code, date)
	if err != nil {
		return err
	}
	g.observe(kindBatch, locationName, number)
	return fn(number)
}

func (g *Generator) nextOrder(ctx context.Context, code string) (domain.SequenceNumber, error) {
	latest, err := g.orders.List(ctx, domain.Where(
		domain.Prefix(domain.FieldOrderNumber, code),
	).OrderBy(domain.Desc(domain.FieldOrderNumber)).WithLimit(1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.SequenceNumber{}, ctxErr
		}
		return g.orderFallback(code, fmt.Errorf("query last order number: %w", err)), nil
	}

	seq := 0
	if len(latest) > 0 {
		_, seq, err = ParseOrderNumber(latest[0].OrderNumber)
		if err != nil {
			return g.orderFallback(code, err), nil
		}
	}
	if seq >= maxOrderSeq {
		return domain.SequenceNumber{}, fmt.Errorf("%w: order numbers for %s", domain.ErrSequenceExhausted, code)
	}
	return domain.SequenceNumber{Value: formatOrderNumber(code, seq+1)}, nil
}

func (g *Generator) nextBatch(ctx context.Context, code string, date time.Time) (domain.SequenceNumber, error) {
	prefix := batchPrefix(code, date)
	latest, err := g.batches.List(ctx, domain.Where(
		domain.Prefix(domain.FieldBatchNumber, prefix),
	).OrderBy(domain.Desc(domain.FieldBatchNumber)).WithLimit(1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.SequenceNumber{}, ctxErr
		}
		return g.batchFallback(prefix, fmt.Errorf("query last batch number: %w", err)), nil
	}

	seq := 0
	if len(latest) > 0 {
		seq, err = strconv.Atoi(strings.TrimPrefix(latest[0].BatchNumber, prefix))
		if err != nil || !ValidBatchNumber(latest[0].BatchNumber) {
			return g.batchFallback(prefix, errors.Join(fmt.Errorf("unparsable batch number %q", latest[0].BatchNumber), err)), nil
		}
	}
	if seq >= maxBatchSeq {
		return domain.SequenceNumber{}, fmt.Errorf("%w: batch numbers for %s", domain.ErrSequenceExhausted, strings.TrimSuffix(prefix, "-"))
	}
	return domain.SequenceNumber{Value: formatBatchNumber(code, date, seq+1)}, nil
}

// orderFallback последние 5 цифр времени в миллисекундах.
func (g *Generator) orderFallback(code string, cause error) domain.SequenceNumber {
	suffix := g.now().UnixMilli() % (maxOrderSeq + 1)
	return domain.SequenceNumber{
		Value:    fmt.Sprintf("%s%0*d", code, orderDigits, suffix),
		Degraded: true,
		Cause:    cause,
	}
}

// batchFallback последние 3 цифры времени в миллисекундах.
func (g *Generator) batchFallback(prefix string, cause error) domain.SequenceNumber {
	suffix := g.now().UnixMilli() % (maxBatchSeq + 1)
	return domain.SequenceNumber{
		Value:    fmt.Sprintf("%s%0*d", prefix, batchDigits, suffix),
		Degraded: true,
		Cause:    cause,
	}
}

func (g *Generator) observe(kind, locationName string, number domain.SequenceNumber) {
	g.metrics.RecordSequence(kind, number.Degraded)
	if !number.Degraded {
		return
	}
	g.logger.WithFields(log.Fields{
		"kind":     kind,
		"location": locationName,
		"number":   number.Value,
	}).WithError(number.Cause).Warn("sequence generation degraded, using timestamp fallback")
}

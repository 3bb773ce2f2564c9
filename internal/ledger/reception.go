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
)

// ReceiveLine одна позиция приёмки.
type ReceiveLine struct {
	ProductID string
	Quantity  int
	UnitCost  decimal.Decimal
}

// ReceiveInput приёмка товара на точку. Все позиции получают один номер партии.
type ReceiveInput struct {
	Location      domain.Location
	ReceptionDate time.Time
	Lines         []ReceiveLine
}

// Reception результат приёмки.
type Reception struct {
	BatchNumber string
	Degraded    bool
	Batches     []domain.Batch
}

// Receive выдаёт номер партии и создаёт по партии на каждую позицию. Номер
// удерживается, пока партии сохраняются; деградированный номер принимается.
func (l *Ledger) Receive(ctx context.Context, in ReceiveInput) (Reception, error) {
	if l.numbers == nil {
		return Reception{}, errors.New("ledger: batch numberer is not configured")
	}
	if len(in.Lines) == 0 {
		return Reception{}, domain.ErrItemsRequired
	}
	for _, line := range in.Lines {
		if line.ProductID == "" {
			return Reception{}, domain.ErrProductRequired
		}
		if line.Quantity <= 0 {
			return Reception{}, domain.ErrInvalidQuantity
		}
		if line.UnitCost.IsNegative() {
			return Reception{}, domain.ErrInvalidCost
		}
	}

	date := in.ReceptionDate
	if date.IsZero() {
		date = l.now()
	}
	date = startOfDay(date)

	var result Reception
	err := l.numbers.ReserveBatchNumber(ctx, in.Location.Name, date, func(number domain.SequenceNumber) error {
		if number.Degraded {
			l.logger.WithFields(log.Fields{
				"location":     in.Location.Name,
				"batch_number": number.Value,
			}).WithError(number.Err()).Warn("reception uses degraded batch number")
		}

		created := make([]domain.Batch, 0, len(in.Lines))
		for _, line := range in.Lines {
			batch, err := l.createBatch(ctx, domain.Batch{
				ProductID:     line.ProductID,
				LocationID:    in.Location.ID,
				Quantity:      line.Quantity,
				UnitCost:      line.UnitCost,
				ReceptionDate: date,
				BatchNumber:   number.Value,
				CreatedAt:     l.now(),
			})
			if err != nil {
				return errors.Join(err, l.dropBatches(ctx, created))
			}
			created = append(created, batch)
		}

		result = Reception{BatchNumber: number.Value, Degraded: number.Degraded, Batches: created}
		return nil
	})
	if err != nil {
		return Reception{}, fmt.Errorf("receive at %s: %w", in.Location.Name, err)
	}

	l.metrics.RecordReception()
	l.events.Emit(ctx, domain.AggregateBatch, result.BatchNumber, events.StockReceived, map[string]any{
		"location_id": in.Location.ID,
		"degraded":    result.Degraded,
		"lines":       len(result.Batches),
	})
	l.logger.WithFields(log.Fields{
		"location":     in.Location.Name,
		"batch_number": result.BatchNumber,
		"lines":        len(result.Batches),
	}).Info("reception stored")
	return result, nil
}

func (l *Ledger) createBatch(ctx context.Context, batch domain.Batch) (domain.Batch, error) {
	unlock, err := l.locker.Lock(ctx, lock.StockKey(batch.ProductID, batch.LocationID))
	if err != nil {
		return domain.Batch{}, fmt.Errorf("lock stock %s/%s: %w", batch.ProductID, batch.LocationID, err)
	}
	defer unlock()

	created, err := l.batches.Create(ctx, batch)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("create batch: %w", err)
	}
	return created, nil
}

// dropBatches удаляет партии незавершённой приёмки.
func (l *Ledger) dropBatches(ctx context.Context, batches []domain.Batch) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, b := range batches {
		unlock, err := l.locker.Lock(ctx, lock.StockKey(b.ProductID, b.LocationID))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := l.batches.Delete(ctx, b.ID); err != nil && !domain.IsNotFound(err) {
			l.logger.WithFields(logFields(b)).WithError(err).Error("failed to drop batch of aborted reception")
			errs = append(errs, err)
		}
		unlock()
	}
	return errors.Join(errs...)
}

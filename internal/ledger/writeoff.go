package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/lock"
)

// WriteOffInput списание товара из конкретной партии.
type WriteOffInput struct {
	BatchID  string
	Quantity int
	Reason   string
	Comment  string
	UserID   string
}

// WriteOff уменьшает остаток партии (или удаляет её при нуле) и сохраняет
// запись о списании.
func (l *Ledger) WriteOff(ctx context.Context, in WriteOffInput) (domain.WriteOff, error) {
	if l.writeOffs == nil {
		return domain.WriteOff{}, errors.New("ledger: write-off repository is not configured")
	}
	if in.Quantity <= 0 {
		return domain.WriteOff{}, domain.ErrInvalidQuantity
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return domain.WriteOff{}, fmt.Errorf("write-off: %w", domain.ErrReasonRequired)
	}

	batch, err := l.batches.Get(ctx, in.BatchID)
	if err != nil {
		return domain.WriteOff{}, fmt.Errorf("get batch %s: %w", in.BatchID, err)
	}

	unlock, err := l.locker.Lock(ctx, lock.StockKey(batch.ProductID, batch.LocationID))
	if err != nil {
		return domain.WriteOff{}, fmt.Errorf("lock stock %s/%s: %w", batch.ProductID, batch.LocationID, err)
	}
	defer unlock()

	err = l.withRetry(ctx, "write_off", func() error {
		current, err := l.batches.Get(ctx, in.BatchID)
		if err != nil {
			return fmt.Errorf("get batch %s: %w", in.BatchID, err)
		}
		if current.Quantity < in.Quantity {
			return &domain.InsufficientStockError{
				ProductID:  current.ProductID,
				LocationID: current.LocationID,
				Available:  current.Quantity,
				Requested:  in.Quantity,
			}
		}
		batch = current
		_, err = l.applyStep(ctx, step{batch: current, take: in.Quantity})
		if domain.IsNotFound(err) {
			return fmt.Errorf("%w: %w", domain.ErrVersionConflict, err)
		}
		return err
	})
	if err != nil {
		return domain.WriteOff{}, err
	}

	record, err := l.writeOffs.Create(ctx, domain.WriteOff{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		ProductID:   batch.ProductID,
		LocationID:  batch.LocationID,
		Quantity:    in.Quantity,
		UnitCost:    batch.UnitCost,
		Cost:        batch.UnitCost.Mul(decimal.NewFromInt(int64(in.Quantity))),
		Reason:      reason,
		Comment:     in.Comment,
		UserID:      in.UserID,
		CreatedAt:   l.now(),
	})
	if err != nil {
		// Остаток уже списан; запись журнала можно восстановить по логу.
		l.logger.WithFields(logFields(batch)).WithError(err).Error("failed to store write-off record")
		return domain.WriteOff{}, fmt.Errorf("store write-off: %w", err)
	}

	l.metrics.RecordWriteOff()
	l.events.Emit(ctx, domain.AggregateBatch, batch.ID, events.StockWrittenOff, map[string]any{
		"batch_number": batch.BatchNumber,
		"product_id":   batch.ProductID,
		"location_id":  batch.LocationID,
		"quantity":     in.Quantity,
		"reason":       reason,
	})
	l.logger.WithFields(logFields(batch)).WithFields(log.Fields{
		"quantity": in.Quantity,
		"reason":   reason,
	}).Info("batch written off")
	return record, nil
}

// WriteOffs журнал списаний по партии.
func (l *Ledger) WriteOffs(ctx context.Context, batchID string) ([]domain.WriteOff, error) {
	if l.writeOffs == nil {
		return nil, errors.New("ledger: write-off repository is not configured")
	}
	return l.writeOffs.List(ctx, domain.Where(
		domain.Eq(domain.FieldBatchID, batchID),
	).OrderBy(domain.Asc(domain.FieldCreatedAt)))
}

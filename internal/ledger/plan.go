package ledger

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// step одно изменение партии в плане списания.
type step struct {
	batch domain.Batch
	take  int
}

func (s step) drains() bool {
	return s.batch.Quantity == s.take
}

// applied результат шага, нужный для отката.
type applied struct {
	step    step
	updated domain.Batch
}

// planFIFO строит план списания без изменений в хранилище. Сумма остатков
// проверяется до первого шага.
func planFIFO(batches []domain.Batch, qty int) ([]step, error) {
	available := 0
	for _, b := range batches {
		available += b.Quantity
	}
	if available < qty {
		return nil, &domain.InsufficientStockError{Available: available, Requested: qty}
	}

	steps := make([]step, 0, len(batches))
	remaining := qty
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := min(b.Quantity, remaining)
		steps = append(steps, step{batch: b, take: take})
		remaining -= take
	}
	return steps, nil
}

// apply выполняет шаги по порядку. При ошибке уже выполненные шаги
// откатываются. Пропавшая партия считается конфликтом версий.
func (l *Ledger) apply(ctx context.Context, steps []step) error {
	done := make([]applied, 0, len(steps))
	for _, s := range steps {
		res, err := l.applyStep(ctx, s)
		if err != nil {
			if domain.IsNotFound(err) {
				err = fmt.Errorf("%w: %w", domain.ErrVersionConflict, err)
			}
			if len(done) == 0 {
				return err
			}
			if rerr := l.revert(ctx, done); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		done = append(done, res)
	}
	return nil
}

func (l *Ledger) applyStep(ctx context.Context, s step) (applied, error) {
	if s.drains() {
		if err := l.batches.Delete(ctx, s.batch.ID); err != nil {
			return applied{}, fmt.Errorf("delete batch %s: %w", s.batch.ID, err)
		}
		return applied{step: s}, nil
	}

	next := s.batch
	next.Quantity -= s.take
	updated, err := l.batches.Update(ctx, next)
	if err != nil {
		return applied{}, fmt.Errorf("update batch %s: %w", s.batch.ID, err)
	}
	return applied{step: s, updated: updated}, nil
}

// revert возвращает хранилище к состоянию до apply: удалённые партии
// создаются заново с тем же ID, уменьшенные получают прежний остаток.
func (l *Ledger) revert(ctx context.Context, done []applied) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		a := done[i]
		if a.step.drains() {
			restored := a.step.batch
			restored.Version = 0
			if _, err := l.batches.Create(ctx, restored); err != nil {
				errs = append(errs, fmt.Errorf("restore batch %s: %w", restored.ID, err))
			}
			continue
		}
		back := a.updated
		back.Quantity += a.step.take
		if _, err := l.batches.Update(ctx, back); err != nil {
			errs = append(errs, fmt.Errorf("restore batch %s: %w", back.ID, err))
		}
	}
	if len(errs) > 0 {
		l.logger.WithError(errors.Join(errs...)).Error("failed to revert partial consumption")
		return errors.Join(errs...)
	}
	l.logger.WithField("steps", len(done)).Warn("partial consumption reverted")
	return nil
}

func planFromSteps(productID, locationID string, qty int, steps []step) domain.ConsumptionPlan {
	portions := make([]domain.BatchPortion, 0, len(steps))
	for _, s := range steps {
		portions = append(portions, domain.BatchPortion{
			BatchID:       s.batch.ID,
			BatchNumber:   s.batch.BatchNumber,
			Quantity:      s.take,
			UnitCost:      s.batch.UnitCost,
			ReceptionDate: s.batch.ReceptionDate,
			CreatedAt:     s.batch.CreatedAt,
		})
	}
	return domain.ConsumptionPlan{
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   qty,
		Portions:   portions,
	}
}

func logFields(b domain.Batch) log.Fields {
	return log.Fields{
		"batch_id":     b.ID,
		"batch_number": b.BatchNumber,
		"product_id":   b.ProductID,
		"location_id":  b.LocationID,
	}
}

package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/ledger"
)

const maxRefundAttempts = 3

// Refund переводит заказ в статус refund и зачисляет товар обратно.
//
// Статус меняется первым (compare-and-swap по версии), поэтому два
// параллельных возврата не зачислят товар дважды: второй получит
// domain.ErrOrderAlreadyRefunded. Ошибки зачисления возвращаются вызывающему,
// статус при этом не откатывается: незачисленные порции пишутся в журнал и
// событием order.refund_credit_failed для ручной корректировки.
func (o *Orchestrator) Refund(ctx context.Context, orderID, actorID string) (domain.Order, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Order{}, domain.ErrUserRequired
	}

	refunded, err := o.markRefunded(ctx, orderID, actorID)
	if err != nil {
		return domain.Order{}, err
	}

	logger := o.logger.WithFields(log.Fields{
		"order_id":     refunded.ID,
		"order_number": refunded.OrderNumber,
		"actor":        actorID,
	})

	var (
		errs   []error
		failed []map[string]any
	)
	for _, line := range refunded.Items {
		for _, portion := range line.Portions {
			_, err := o.stock.Credit(context.WithoutCancel(ctx), ledger.CreditInput{
				ProductID:   line.ProductID,
				LocationID:  line.LocationID,
				Quantity:    portion.Quantity,
				UnitCost:    portion.UnitCost,
				BatchNumber: portion.BatchNumber,
				BatchID:     portion.BatchID,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("credit %s/%s: %w", line.ProductID, portion.BatchNumber, err))
				failed = append(failed, map[string]any{
					"product_id":   line.ProductID,
					"location_id":  line.LocationID,
					"batch_id":     portion.BatchID,
					"batch_number": portion.BatchNumber,
					"quantity":     portion.Quantity,
					"unit_cost":    portion.UnitCost.String(),
					"error":        err.Error(),
				})
			}
		}
	}

	o.metrics.RecordRefund()
	o.events.Audit(ctx, domain.AuditEvent{
		AggregateType: domain.AggregateOrder,
		AggregateID:   refunded.ID,
		Type:          string(events.OrderRefunded),
		Actor:         actorID,
	})
	o.events.Emit(ctx, domain.AggregateOrder, refunded.ID, events.OrderRefunded, map[string]any{
		"order_number": refunded.OrderNumber,
		"refunded_by":  actorID,
		"total":        refunded.Total.String(),
		"items":        refunded.ItemsCount(),
	})

	if len(errs) > 0 {
		err := errors.Join(errs...)
		o.reportCreditFailure(ctx, refunded, actorID, failed, err)
		logger.WithError(err).WithField("failed_portions", len(failed)).Error("refund stored but stock credit failed")
		return refunded, fmt.Errorf("refund %s: %w", refunded.ID, err)
	}
	logger.Info("order refunded")
	return refunded, nil
}

func (o *Orchestrator) reportCreditFailure(ctx context.Context, order domain.Order, actorID string, failed []map[string]any, cause error) {
	o.events.Audit(ctx, domain.AuditEvent{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		Type:          string(events.OrderRefundCreditFailed),
		Actor:         actorID,
		Reason:        cause.Error(),
	})
	o.events.Emit(ctx, domain.AggregateOrder, order.ID, events.OrderRefundCreditFailed, map[string]any{
		"order_number":    order.OrderNumber,
		"refunded_by":     actorID,
		"failed_portions": failed,
	})
}

func (o *Orchestrator) markRefunded(ctx context.Context, orderID, actorID string) (domain.Order, error) {
	var err error
	for attempt := 1; attempt <= maxRefundAttempts; attempt++ {
		var order domain.Order
		order, err = o.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if order.IsRefunded() {
			return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderAlreadyRefunded)
		}

		at := o.now()
		order.Status = domain.OrderStatusRefund
		order.RefundedAt = &at
		order.RefundedBy = actorID

		var updated domain.Order
		updated, err = o.orders.Update(ctx, order)
		if err == nil {
			return updated, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("mark order %s refunded: %w", orderID, err)
		}
	}
	return domain.Order{}, fmt.Errorf("mark order %s refunded: %w", orderID, err)
}

// Delete удаляет заказ без возврата товара в партии.
func (o *Orchestrator) Delete(ctx context.Context, orderID, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return domain.ErrUserRequired
	}
	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := o.orders.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("delete order %s: %w", orderID, err)
	}

	o.events.Audit(ctx, domain.AuditEvent{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		Type:          string(events.OrderDeleted),
		Actor:         actorID,
	})
	o.events.Emit(ctx, domain.AggregateOrder, order.ID, events.OrderDeleted, map[string]any{
		"order_number": order.OrderNumber,
		"deleted_by":   actorID,
		"status":       string(order.Status),
	})
	o.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"actor":        actorID,
	}).Warn("order deleted, stock not restored")
	return nil
}

// History журнал действий по заказу.
func (o *Orchestrator) History(ctx context.Context, orderID string) ([]domain.AuditEvent, error) {
	return o.events.History(ctx, orderID)
}

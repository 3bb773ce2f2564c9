// Package sales проводит продажу: списание по FIFO, номер заказа, сохранение
// и неявное открытие смены. Если продажа не удалась после списания, товар
// возвращается в исходные партии компенсирующими зачислениями.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
	"github.com/alcosklad/alcoapp-sub000/internal/events"
	"github.com/alcosklad/alcoapp-sub000/internal/ledger"
	"github.com/alcosklad/alcoapp-sub000/internal/metrics"
)

const maxNumberAttempts = 3

// Stock списание и зачисление товара.
type Stock interface {
	Consume(ctx context.Context, productID, locationID string, qty int) (domain.ConsumptionPlan, error)
	Credit(ctx context.Context, in ledger.CreditInput) (domain.Batch, error)
}

// OrderNumberer выдаёт номер заказа и держит его, пока fn сохраняет заказ.
type OrderNumberer interface {
	LocationCode(locationName string) (string, error)
	ReserveOrderNumber(ctx context.Context, locationName string, fn func(domain.SequenceNumber) error) error
}

// Shifts неявное открытие смены.
type Shifts interface {
	EnsureActive(ctx context.Context, userID, locationID string, at time.Time) (domain.Shift, bool, error)
}

// SaleItem позиция запроса на продажу.
type SaleItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// SaleRequest запрос на продажу от сотрудника.
type SaleRequest struct {
	UserID        string
	Items         []SaleItem
	Discount      decimal.Decimal
	PaymentMethod domain.PaymentMethod
}

// ListFilter отбор заказов. Пустые поля не фильтруют.
type ListFilter struct {
	UserID  string
	ShiftID string
	Status  domain.OrderStatus
	From    time.Time
	To      time.Time
	Limit   int
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics включает метрики продаж.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithEvents включает outbox-события и журнал действий.
func WithEvents(emitter *events.Emitter) Option {
	return func(o *Orchestrator) {
		o.events = emitter
	}
}

// WithShifts включает неявное открытие смены после продажи.
func WithShifts(shifts Shifts) Option {
	return func(o *Orchestrator) {
		o.shifts = shifts
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator проводит, возвращает и удаляет заказы.
type Orchestrator struct {
	directory domain.LocationDirectory
	stock     Stock
	numbers   OrderNumberer
	orders    domain.OrderRepository
	shifts    Shifts
	events    *events.Emitter
	logger    *log.Entry
	metrics   *metrics.LedgerMetrics
	now       func() time.Time
}

// NewOrchestrator создаёт Orchestrator.
func NewOrchestrator(directory domain.LocationDirectory, stock Stock, numbers OrderNumberer, orders domain.OrderRepository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		directory: directory,
		stock:     stock,
		numbers:   numbers,
		orders:    orders,
		logger:    log.WithField("component", "sales"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sell проводит продажу.
//
// Ошибки: *domain.InsufficientStockError, если товара не хватило;
// domain.ErrOrderPersistFailed, если не удалось выдать номер или сохранить
// заказ. В обоих случаях уже списанные позиции возвращены в партии.
func (o *Orchestrator) Sell(ctx context.Context, req SaleRequest) (domain.Order, error) {
	started := time.Now()
	order, err := o.sell(ctx, req)
	o.metrics.RecordSale(saleResult(err), time.Since(started))
	return order, err
}

func (o *Orchestrator) sell(ctx context.Context, req SaleRequest) (domain.Order, error) {
	if err := validate(&req); err != nil {
		return domain.Order{}, err
	}

	location, err := o.directory.LocationOf(ctx, req.UserID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("resolve location: %w", err)
	}
	// Точка без кода не может получить номер заказа: проверяем до списания.
	if _, err := o.numbers.LocationCode(location.Name); err != nil {
		return domain.Order{}, fmt.Errorf("resolve location code: %w", err)
	}

	logger := o.logger.WithFields(log.Fields{
		"user_id":     req.UserID,
		"location_id": location.ID,
	})

	lines := make([]domain.SaleLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if err := ctx.Err(); err != nil {
			return domain.Order{}, o.abort(ctx, logger, lines, err)
		}
		plan, err := o.stock.Consume(ctx, item.ProductID, location.ID, item.Quantity)
		if err != nil {
			var shortage *domain.InsufficientStockError
			if errors.As(err, &shortage) {
				shortage.ProductName = item.ProductName
			}
			return domain.Order{}, o.abort(ctx, logger, lines, err)
		}
		lines = append(lines, domain.SaleLineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			LocationID:  location.ID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			UnitCost:    plan.UnitCost(),
			Portions:    plan.Portions,
		})
	}

	order := domain.Order{
		UserID:        req.UserID,
		LocationID:    location.ID,
		Items:         lines,
		Discount:      req.Discount,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.OrderStatusCompleted,
		CreatedAt:     o.now(),
	}
	order.Recalculate()

	created, err := o.persist(ctx, location, order)
	if err != nil {
		return domain.Order{}, o.abort(ctx, logger, lines, fmt.Errorf("%w: %w", domain.ErrOrderPersistFailed, err))
	}
	if created.NumberDegraded {
		logger.WithField("order_number", created.OrderNumber).Warn("order stored with degraded number")
	}

	created = o.attachShift(ctx, logger, created)

	o.events.Emit(ctx, domain.AggregateOrder, created.ID, events.OrderCompleted, map[string]any{
		"order_number":    created.OrderNumber,
		"number_degraded": created.NumberDegraded,
		"user_id":         created.UserID,
		"location_id":     created.LocationID,
		"total":           created.Total.String(),
		"cost_total":      created.CostTotal.String(),
		"items":           created.ItemsCount(),
	})
	logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"order_number": created.OrderNumber,
		"total":        created.Total.String(),
	}).Info("sale completed")
	return created, nil
}

// persist выдаёт номер и сохраняет заказ под блокировкой счётчика. Дубликат
// номера (уникальный индекс, деградированный номер) повторяется с новым номером.
func (o *Orchestrator) persist(ctx context.Context, location domain.Location, order domain.Order) (domain.Order, error) {
	var (
		created domain.Order
		err     error
	)
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err = o.numbers.ReserveOrderNumber(ctx, location.Name, func(number domain.SequenceNumber) error {
			candidate := order
			candidate.OrderNumber = number.Value
			candidate.NumberDegraded = number.Degraded
			var createErr error
			created, createErr = o.orders.Create(ctx, candidate)
			return createErr
		})
		if err == nil || !errors.Is(err, domain.ErrDuplicate) {
			return created, err
		}
		o.logger.WithFields(log.Fields{
			"location": location.Name,
			"attempt":  attempt,
		}).WithError(err).Warn("order number collision, retrying")
	}
	return domain.Order{}, err
}

func (o *Orchestrator) attachShift(ctx context.Context, logger *log.Entry, order domain.Order) domain.Order {
	if o.shifts == nil {
		return order
	}
	shift, started, err := o.shifts.EnsureActive(ctx, order.UserID, order.LocationID, order.CreatedAt)
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Warn("implicit shift start failed, order kept")
		return order
	}
	if started {
		logger.WithField("shift_id", shift.ID).Info("shift started implicitly")
	}

	order.ShiftID = shift.ID
	updated, err := o.orders.Update(ctx, order)
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Warn("failed to link order to shift")
		order.ShiftID = ""
		return order
	}
	return updated
}

// abort возвращает уже списанные позиции и объединяет ошибку продажи с
// ошибками компенсации.
func (o *Orchestrator) abort(ctx context.Context, logger *log.Entry, lines []domain.SaleLineItem, cause error) error {
	if len(lines) == 0 {
		return cause
	}
	if err := o.compensate(ctx, lines); err != nil {
		logger.WithError(err).Error("compensation failed, stock requires manual correction")
		return errors.Join(cause, err)
	}
	logger.WithError(cause).WithField("lines", len(lines)).Warn("sale aborted, stock restored")
	return cause
}

// compensate зачисляет каждую порцию обратно в исходную партию, восстанавливая
// удалённые партии с прежними ID и датой приёмки. Выполняется и при отменённом ctx.
func (o *Orchestrator) compensate(ctx context.Context, lines []domain.SaleLineItem) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, line := range lines {
		for _, portion := range line.Portions {
			_, err := o.stock.Credit(ctx, ledger.CreditInput{
				ProductID:     line.ProductID,
				LocationID:    line.LocationID,
				Quantity:      portion.Quantity,
				UnitCost:      portion.UnitCost,
				BatchNumber:   portion.BatchNumber,
				BatchID:       portion.BatchID,
				Restore:       true,
				ReceptionDate: portion.ReceptionDate,
				CreatedAt:     portion.CreatedAt,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("credit %s/%s: %w", line.ProductID, portion.BatchNumber, err))
			}
		}
	}
	if len(errs) > 0 {
		o.metrics.RecordCompensation(metrics.ResultError)
		return errors.Join(errs...)
	}
	o.metrics.RecordCompensation(metrics.ResultOK)
	return nil
}

// Get возвращает заказ по ID.
func (o *Orchestrator) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return o.orders.Get(ctx, orderID)
}

// List заказы по фильтру, новые первыми.
func (o *Orchestrator) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	var where []domain.Condition
	if f.UserID != "" {
		where = append(where, domain.Eq(domain.FieldUserID, f.UserID))
	}
	if f.ShiftID != "" {
		where = append(where, domain.Eq(domain.FieldShiftID, f.ShiftID))
	}
	if f.Status != "" {
		where = append(where, domain.Eq(domain.FieldStatus, f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, domain.Gte(domain.FieldCreatedAt, f.From))
	}
	if !f.To.IsZero() {
		where = append(where, domain.Lte(domain.FieldCreatedAt, f.To))
	}
	return o.orders.List(ctx, domain.Where(where...).
		OrderBy(domain.Desc(domain.FieldCreatedAt)).
		WithLimit(f.Limit))
}

func validate(req *SaleRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ErrUserRequired
	}
	if len(req.Items) == 0 {
		return domain.ErrItemsRequired
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, req.PaymentMethod)
	}

	subtotal := decimal.Zero
	for _, item := range req.Items {
		if item.ProductID == "" {
			return domain.ErrProductRequired
		}
		if item.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return domain.ErrInvalidPrice
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if req.Discount.IsNegative() || req.Discount.GreaterThan(subtotal) {
		return domain.ErrInvalidDiscount
	}
	return nil
}

func saleResult(err error) string {
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

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label "result".
const (
	ResultOK           = "ok"
	ResultInsufficient = "insufficient_stock"
	ResultConflict     = "version_conflict"
	ResultError        = "error"
)

// LedgerMetrics метрики складского журнала, нумерации, смен и продаж.
// Все методы безопасны для nil-получателя: компоненты без метрик просто их не пишут.
type LedgerMetrics struct {
	// Партии
	consumeDuration *prometheus.HistogramVec
	credits         *prometheus.CounterVec
	writeOffs       prometheus.Counter
	receptions      prometheus.Counter

	// Нумерация
	sequenceIssued   *prometheus.CounterVec
	sequenceDegraded *prometheus.CounterVec

	// Продажи
	sales         *prometheus.CounterVec
	compensations *prometheus.CounterVec
	refunds       prometheus.Counter
	saleDuration  prometheus.Histogram

	// Смены
	shiftsStarted prometheus.Counter
	shiftsClosed  *prometheus.CounterVec
	shiftEdits    prometheus.Counter

	outboxEvents prometheus.Counter
}

// NewLedgerMetrics регистрирует метрики в DefaultRegisterer.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer регистрирует метрики в заданном registry.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		consumeDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ledger_consume_duration_seconds",
			Help:    "Duration of FIFO consume operations including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"result"}),
		credits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_credits_total",
			Help: "Total number of credits back into batches grouped by target",
		}, []string{"target"}),
		writeOffs: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_write_offs_total",
			Help: "Total number of batch write-offs",
		}),
		receptions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_receptions_total",
			Help: "Total number of stock receptions",
		}),
		sequenceIssued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sequence_issued_total",
			Help: "Total number of issued order and batch numbers",
		}, []string{"kind"}),
		sequenceDegraded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sequence_degraded_total",
			Help: "Total number of numbers issued by the timestamp fallback",
		}, []string{"kind"}),
		sales: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sales_total",
			Help: "Total number of sale attempts grouped by result",
		}, []string{"result"}),
		compensations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_compensations_total",
			Help: "Total number of compensating credits grouped by result",
		}, []string{"result"}),
		refunds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_refunds_total",
			Help: "Total number of refunded orders",
		}),
		saleDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ledger_sale_duration_seconds",
			Help:    "Duration of sale orchestration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		shiftsStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_shifts_started_total",
			Help: "Total number of started shifts",
		}),
		shiftsClosed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_shifts_closed_total",
			Help: "Total number of closed shifts grouped by who closed them",
		}, []string{"by"}),
		shiftEdits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_shift_edits_total",
			Help: "Total number of post-close shift edits",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_outbox_events_total",
			Help: "Total number of events enqueued into the outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(registerer, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// ObserveConsume записывает длительность списания с результатом.
func (m *LedgerMetrics) ObserveConsume(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.consumeDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordCredit учитывает зачисление: target = existing | created.
func (m *LedgerMetrics) RecordCredit(target string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(target).Inc()
}

// RecordWriteOff увеличивает счётчик списаний.
func (m *LedgerMetrics) RecordWriteOff() {
	if m == nil {
		return
	}
	m.writeOffs.Inc()
}

// RecordReception увеличивает счётчик приёмок.
func (m *LedgerMetrics) RecordReception() {
	if m == nil {
		return
	}
	m.receptions.Inc()
}

// RecordSequence учитывает выданный номер; kind = order | batch.
func (m *LedgerMetrics) RecordSequence(kind string, degraded bool) {
	if m == nil {
		return
	}
	m.sequenceIssued.WithLabelValues(kind).Inc()
	if degraded {
		m.sequenceDegraded.WithLabelValues(kind).Inc()
	}
}

// RecordSale учитывает попытку продажи с результатом.
func (m *LedgerMetrics) RecordSale(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sales.WithLabelValues(result).Inc()
	m.saleDuration.Observe(duration.Seconds())
}

// RecordCompensation учитывает компенсирующее зачисление.
func (m *LedgerMetrics) RecordCompensation(result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(result).Inc()
}

// RecordRefund увеличивает счётчик возвратов.
func (m *LedgerMetrics) RecordRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// RecordShiftStarted увеличивает счётчик открытых смен.
func (m *LedgerMetrics) RecordShiftStarted() {
	if m == nil {
		return
	}
	m.shiftsStarted.Inc()
}

// RecordShiftClosed учитывает закрытие смены; by = worker | admin.
func (m *LedgerMetrics) RecordShiftClosed(by string) {
	if m == nil {
		return
	}
	m.shiftsClosed.WithLabelValues(by).Inc()
}

// RecordShiftEdit увеличивает счётчик правок смен.
func (m *LedgerMetrics) RecordShiftEdit() {
	if m == nil {
		return
	}
	m.shiftEdits.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LedgerMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

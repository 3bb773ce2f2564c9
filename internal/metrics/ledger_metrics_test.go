package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewLedgerMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewLedgerMetricsWithRegisterer(reg)
	second := NewLedgerMetricsWithRegisterer(reg)

	first.RecordRefund()
	second.RecordRefund()

	if got := testutil.ToFloat64(first.refunds); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestLedgerMetrics_Sequence(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetricsWithRegisterer(reg)

	m.RecordSequence("order", false)
	m.RecordSequence("order", true)
	m.RecordSequence("batch", false)

	if got := testutil.ToFloat64(m.sequenceIssued.WithLabelValues("order")); got != 2 {
		t.Errorf("expected 2 issued order numbers, got %v", got)
	}
	if got := testutil.ToFloat64(m.sequenceDegraded.WithLabelValues("order")); got != 1 {
		t.Errorf("expected 1 degraded order number, got %v", got)
	}
	if got := testutil.ToFloat64(m.sequenceDegraded.WithLabelValues("batch")); got != 0 {
		t.Errorf("expected 0 degraded batch numbers, got %v", got)
	}
}

func TestLedgerMetrics_SalesAndConsume(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetricsWithRegisterer(reg)

	m.RecordSale(ResultOK, 10*time.Millisecond)
	m.RecordSale(ResultInsufficient, time.Millisecond)
	m.RecordCompensation(ResultOK)
	m.ObserveConsume(ResultOK, 2*time.Millisecond)

	if got := testutil.ToFloat64(m.sales.WithLabelValues(ResultOK)); got != 1 {
		t.Errorf("expected 1 completed sale, got %v", got)
	}
	if got := testutil.ToFloat64(m.compensations.WithLabelValues(ResultOK)); got != 1 {
		t.Errorf("expected 1 compensation, got %v", got)
	}

	metric := &dto.Metric{}
	if err := m.saleDuration.Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 sale duration samples, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestLedgerMetrics_NilSafe(t *testing.T) {
	var m *LedgerMetrics

	m.ObserveConsume(ResultOK, time.Millisecond)
	m.RecordCredit("created")
	m.RecordWriteOff()
	m.RecordReception()
	m.RecordSequence("order", true)
	m.RecordSale(ResultOK, time.Millisecond)
	m.RecordCompensation(ResultError)
	m.RecordRefund()
	m.RecordShiftStarted()
	m.RecordShiftClosed("admin")
	m.RecordShiftEdit()
	m.RecordOutboxEvent()
}

func TestLedgerMetrics_ShiftCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetricsWithRegisterer(reg)

	m.RecordShiftStarted()
	m.RecordShiftClosed("worker")
	m.RecordShiftClosed("admin")
	m.RecordShiftEdit()

	if got := testutil.ToFloat64(m.shiftsStarted); got != 1 {
		t.Errorf("expected 1 started shift, got %v", got)
	}
	if got := testutil.ToFloat64(m.shiftsClosed.WithLabelValues("admin")); got != 1 {
		t.Errorf("expected 1 admin close, got %v", got)
	}
	if got := testutil.ToFloat64(m.shiftEdits); got != 1 {
		t.Errorf("expected 1 edit, got %v", got)
	}
}

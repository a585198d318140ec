package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperationCountsBusy(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveOperation("join", "ok", time.Millisecond)
	m.ObserveOperation("join", "busy", time.Second)

	if got := testutil.ToFloat64(m.Operations.WithLabelValues("join", "ok")); got != 1 {
		t.Fatalf("expected 1 ok join, got %v", got)
	}
	if got := testutil.ToFloat64(m.BusyRejections.WithLabelValues("join")); got != 1 {
		t.Fatalf("expected 1 busy join, got %v", got)
	}
}

func TestMaturedIgnoresZero(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Matured(0)
	m.Matured(3)
	if got := testutil.ToFloat64(m.CommissionsMatured); got != 3 {
		t.Fatalf("expected 3 matured, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("exit", "ok", time.Millisecond)
	m.NotificationFailed("refund")
	m.Matured(1)
	m.Started(1)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Operations          *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	BusyRejections      *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	CommissionsMatured  prometheus.Counter
	TournamentsStarted  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tourney_engine_operations_total",
			Help: "Engine operations by outcome",
		}, []string{"op", "outcome"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourney_engine_operation_duration_seconds",
			Help:    "Wall time of an engine operation including lock waits",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),

		BusyRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tourney_engine_busy_total",
			Help: "Operations rejected because a lock could not be acquired in time",
		}, []string{"op"}),

		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tourney_notifications_failed_total",
			Help: "Post-commit notifications that could not be delivered",
		}, []string{"kind"}),

		CommissionsMatured: factory.NewCounter(prometheus.CounterOpts{
			Name: "tourney_dhana_commissions_matured_total",
			Help: "Pending commission entries moved to available",
		}),

		TournamentsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tourney_tournaments_auto_started_total",
			Help: "Tournaments started by the scheduler",
		}),
	}
}

func (m *Metrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if outcome == "busy" {
		m.BusyRejections.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) Matured(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CommissionsMatured.Add(float64(n))
}

func (m *Metrics) Started(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TournamentsStarted.Add(float64(n))
}

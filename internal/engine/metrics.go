package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for lifecycle operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the lifecycle collectors with reg. Collectors that are
// already registered are reused, so several engines may share one registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whygo",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and result kind.",
		},
		[]string{"op", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whygo",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in lifecycle operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	if err := reg.Register(operations); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
		operations = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
		duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return &Metrics{operations: operations, duration: duration}
}

func (m *Metrics) observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(Kind(err))
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

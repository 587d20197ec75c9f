package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// Metrics records mutation outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	mutations *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rows      *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hirelane",
			Subsystem: "pipeline",
			Name:      "mutations_total",
			Help:      "Reorder and transfer operations by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hirelane",
			Subsystem: "pipeline",
			Name:      "mutation_duration_seconds",
			Help:      "Latency of reorder and transfer operations including gateway round-trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "op"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hirelane",
			Subsystem: "pipeline",
			Name:      "rows_rewritten_total",
			Help:      "Rows written by bulk order overwrites.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.mutations, m.duration, m.rows)
	}
	return m
}

func (m *Metrics) observe(kind Kind, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(kind), op, outcome(err)).Inc()
	m.duration.WithLabelValues(string(kind), op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) rewritten(kind Kind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rows.WithLabelValues(string(kind)).Add(float64(n))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ordering.ErrNotFound):
		return "not_found"
	case errors.Is(err, ordering.ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ordering.ErrTransient):
		return "transient"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "error"
}

// Package metrics exposes Prometheus collectors for the approval workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"instructapi/internal/model"
)

// Workflow counts workflow status transitions and concurrency retries.
// A nil *Workflow records nothing.
type Workflow struct {
	transitions *prometheus.CounterVec
	retries     *prometheus.CounterVec
}

// NewWorkflow creates the collectors and registers them on reg.
func NewWorkflow(reg prometheus.Registerer) (*Workflow, error) {
	w := &Workflow{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_transitions_total",
				Help: "Total number of document status transitions.",
			},
			[]string{"kind", "from", "to"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_write_retries_total",
				Help: "Writes re-applied after losing a concurrent update race.",
			},
			[]string{"kind", "operation"},
		),
	}
	for _, c := range []prometheus.Collector{w.transitions, w.retries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Transition records a status change. Unchanged statuses are ignored.
func (w *Workflow) Transition(kind string, from, to model.Status) {
	if w == nil || from == to {
		return
	}
	w.transitions.WithLabelValues(kind, string(from), string(to)).Inc()
}

// Retry records one optimistic concurrency retry.
func (w *Workflow) Retry(kind, operation string) {
	if w == nil {
		return
	}
	w.retries.WithLabelValues(kind, operation).Inc()
}

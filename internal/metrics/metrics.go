// Package metrics exposes sync queue activity as Prometheus metrics.
package metrics

import (
	"notesync/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder turns queue status events into metrics.
type Recorder struct {
	// transitions counts status transitions by task kind and status.
	transitions *prometheus.CounterVec

	// depth reads the queue length at scrape time; nil without queueLen.
	depth prometheus.GaugeFunc

	// attempts observes failed executions per task at its terminal status.
	attempts *prometheus.HistogramVec
}

// New registers the metrics with reg. queueLen may be nil.
func New(reg prometheus.Registerer, queueLen func() int) *Recorder {
	f := promauto.With(reg)
	r := &Recorder{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notesync_status_transitions_total",
			Help: "Sync status transitions by task kind and status",
		}, []string{"kind", "status"}),
		attempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notesync_task_failed_attempts",
			Help:    "Failed executions per task when it reached a terminal status",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		}, []string{"kind", "status"}),
	}
	if queueLen != nil {
		r.depth = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "notesync_queue_depth",
			Help: "Number of tasks waiting in the sync queue",
		}, func() float64 { return float64(queueLen()) })
	}
	return r
}

// Observe is a syncq.Observer.
func (r *Recorder) Observe(e domain.StatusEvent) {
	r.transitions.WithLabelValues(string(e.Kind), string(e.Status)).Inc()
	if e.Status.IsTerminal() {
		r.attempts.WithLabelValues(string(e.Kind), string(e.Status)).Observe(float64(e.Attempt))
	}
}

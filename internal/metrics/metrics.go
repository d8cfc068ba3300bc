// Package metrics exposes the pipeline's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task terminal statuses reported on TasksTotal.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusMalformed = "malformed"
	StatusDuplicate = "duplicate"
	StatusQuota     = "quota_exceeded"
	StatusDead      = "dead_lettered"
)

// Metrics holds the worker and gateway collectors.
type Metrics struct {
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	ResultsTotal *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riverai_tasks_total",
			Help: "Consumed task envelopes by kind and terminal status.",
		}, []string{"kind", "status"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riverai_task_duration_seconds",
			Help:    "Handler execution time by task kind.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
		ResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riverai_results_total",
			Help: "Delivered result envelopes by kind.",
		}, []string{"kind"}),
	}
}

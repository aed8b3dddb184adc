// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TriggerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restopos",
		Name:      "trigger_handler_runs_total",
		Help:      "Document change handler invocations by handler and result.",
	}, []string{"handler", "result"})

	TriggerBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "restopos",
		Name:      "trigger_changes_claimed",
		Help:      "Document changes claimed in the last dispatcher poll.",
	})

	TriggerAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "restopos",
		Name:      "trigger_changes_abandoned_total",
		Help:      "Document changes parked after exhausting their delivery attempts.",
	})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restopos",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by job and result.",
	}, []string{"job", "result"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "restopos",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job duration.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"job"})

	PaymentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restopos",
		Name:      "payment_gateway_requests_total",
		Help:      "Payment gateway calls by operation and result.",
	}, []string{"operation", "result"})
)

// Result labels an outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveJob records one job run.
func ObserveJob(job string, started time.Time, err error) {
	JobRuns.WithLabelValues(job, Result(err)).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

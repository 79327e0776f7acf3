// Package jobxprom reports jobx engine events as Prometheus metrics.
package jobxprom

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
)

const namespace = "jobrunner"

// Metrics implements jobx.Metrics.
type Metrics struct {
	submitted *prometheus.CounterVec
	claimed   *prometheus.CounterVec
	succeeded *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retried   *prometheus.CounterVec
	reaped    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ jobx.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Job submissions, split by whether a new row was created.",
		}, []string{"job_type", "created"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_claimed_total",
			Help:      "Jobs claimed by a worker.",
		}, []string{"job_type"}),
		succeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_succeeded_total",
			Help:      "Jobs that finished successfully.",
		}, []string{"job_type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Jobs that failed permanently.",
		}, []string{"job_type"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retry_scheduled_total",
			Help:      "Failed attempts that were scheduled for retry.",
		}, []string{"job_type"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reaped_total",
			Help:      "In-flight tokens and stale rows handled by the reaper.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Handler execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"job_type", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.submitted, m.claimed, m.succeeded, m.failed, m.retried, m.reaped, m.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) JobSubmitted(jobType string, created bool) {
	m.submitted.WithLabelValues(jobType, strconv.FormatBool(created)).Inc()
}

func (m *Metrics) JobClaimed(jobType string) {
	m.claimed.WithLabelValues(jobType).Inc()
}

func (m *Metrics) JobSucceeded(jobType string, elapsed time.Duration) {
	m.succeeded.WithLabelValues(jobType).Inc()
	m.duration.WithLabelValues(jobType, "succeeded").Observe(elapsed.Seconds())
}

func (m *Metrics) JobRetryScheduled(jobType string, elapsed time.Duration) {
	m.retried.WithLabelValues(jobType).Inc()
	m.duration.WithLabelValues(jobType, "retry").Observe(elapsed.Seconds())
}

func (m *Metrics) JobFailed(jobType string, elapsed time.Duration) {
	m.failed.WithLabelValues(jobType).Inc()
	m.duration.WithLabelValues(jobType, "failed").Observe(elapsed.Seconds())
}

func (m *Metrics) JobsReaped(reason string, n int) {
	if n <= 0 {
		return
	}
	m.reaped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Submitted() *prometheus.CounterVec { return m.submitted }
func (m *Metrics) Claimed() *prometheus.CounterVec   { return m.claimed }
func (m *Metrics) Succeeded() *prometheus.CounterVec { return m.succeeded }
func (m *Metrics) Failed() *prometheus.CounterVec    { return m.failed }
func (m *Metrics) Reaped() *prometheus.CounterVec    { return m.reaped }

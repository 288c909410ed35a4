package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run results.
const (
	RunSucceeded = "success"
	RunFailed    = "failure"
)

// CronJobMetrics covers the cron worker: per-job runs, cycles that lost the
// leader lock and rows each job swept.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	cycles      *prometheus.CounterVec
	swept       *prometheus.CounterVec
}

// NewCronJobMetrics registers on reg. A nil registerer yields a no-op
// recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "cron", Name: name, Help: help}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"job_runs_total", "Cron job executions by result.")), []string{"job", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(
			"job_last_success_timestamp_seconds", "Unix time of the last successful run.")), []string{"job"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"cycles_total", "Scheduler cycles by whether this worker held the lock.")), []string{"lock"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"rows_swept_total", "Rows moved to a terminal state or deleted by cron jobs.")), []string{"job", "from"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Cron job wall time.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.cycles, m.swept)
	return m
}

// ObserveRun records one job execution.
func (c *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	job = label(job)
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, RunFailed).Inc()
		return
	}
	c.runs.WithLabelValues(job, RunSucceeded).Inc()
	c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// ObserveCycle counts a scheduler tick. held is false when another worker
// owned the lock.
func (c *CronJobMetrics) ObserveCycle(held bool) {
	if c == nil {
		return
	}
	state := "held"
	if !held {
		state = "skipped"
	}
	c.cycles.WithLabelValues(state).Inc()
}

// AddSwept counts rows a job moved out of from. Non-positive n is ignored.
func (c *CronJobMetrics) AddSwept(job, from string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.swept.WithLabelValues(label(job), label(from)).Add(float64(n))
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

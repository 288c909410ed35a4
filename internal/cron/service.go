package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
)

const (
	defaultInterval   = 5 * time.Minute
	defaultJobTimeout = 2 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding the
// cluster-wide lock. A failing job does not stop the jobs after it.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// cycleReport summarizes one pass over the registry.
type cycleReport struct {
	skipped bool
	ran     int
	failed  int
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron service: logger is required")
	case params.Lock == nil:
		return nil, errors.New("cron service: lock is required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   durationOr(params.Interval, defaultInterval),
		jobTimeout: durationOr(params.JobTimeout, defaultJobTimeout),
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		}
		if _, err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) (cycleReport, error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return cycleReport{}, fmt.Errorf("acquire cron lock: %w", err)
	}
	s.metrics.ObserveCycle(held)
	if !held {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return cycleReport{skipped: true}, nil
	}
	defer func() {
		// release on a fresh context so shutdown does not strand the lease
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("cron lock release failed: %v", err))
		}
	}()

	var report cycleReport
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		report.ran++
		if !s.runJob(ctx, job) {
			report.failed++
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_run":    report.ran,
		"jobs_failed": report.failed,
	}), "cron cycle finished")
	return report, nil
}

// runJob reports whether the job succeeded.
func (s *Service) runJob(ctx context.Context, job Job) bool {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"job": name, "event": "cron.job"})

	started := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(started)
	logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())

	s.metrics.ObserveRun(name, elapsed, err)
	if err != nil {
		s.logg.Error(logCtx, "cron job failed", err)
		return false
	}
	s.logg.Info(logCtx, "cron job finished")
	return true
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout caps each job; zero lets a job run for the whole cycle.
	JobTimeout time.Duration
}

// Service runs the registered jobs every interval. The lock keeps a cycle to
// a single replica.
type Service struct {
	logg       *logger.Logger
	jobs       *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// Report summarises one cycle. Skipped is set when another replica held the lock.
type Report struct {
	Skipped bool
	Ran     int
	Failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	jobs := params.Registry
	if jobs == nil {
		jobs = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		jobs:       jobs,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
	}, nil
}

// Run starts a cycle right away and then one per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		timer.Reset(s.interval)
	}
}

// RunOnce executes every job in registration order. Job errors land in the
// report; only lock failures and cancellation are returned.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, err
	}
	if !held {
		report.Skipped = true
		s.logg.Info(ctx, "cron.cycle_skipped")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	for _, job := range s.jobs.Jobs() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Ran++
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ran":    report.Ran,
		"failed": len(report.Failed),
	}), "cron.cycle_done")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithJob(ctx, job.Name())
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	started := s.now()
	err := job.Run(ctx)
	took := s.now().Sub(started)
	s.metrics.JobRun(job.Name(), took, err, s.now())

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return err
	}
	s.logg.Info(ctx, "cron.job_done")
	return nil
}

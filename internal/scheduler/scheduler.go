// Package scheduler runs the periodic jobs on a cron clock pinned to the
// analytics timezone, and exposes the same jobs for on-demand runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"restopos-backend/internal/metrics"
	"restopos-backend/internal/ports"
)

// Job is one named periodic task. Spec is a standard five-field cron expression.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	loc    *time.Location
	logger *slog.Logger
	jobs   []Job
	byName map[string]Job
}

var _ ports.JobRunner = (*Scheduler)(nil)

func New(loc *time.Location, logger *slog.Logger, jobs ...Job) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{loc: loc, logger: logger, jobs: jobs, byName: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		s.byName[j.Name] = j
	}
	return s
}

// Jobs lists job names in registration order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}

// RunJob runs a job now, recording its outcome.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	job, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrUnknownJob, name)
	}
	started := time.Now()
	err := job.Run(ctx)
	metrics.ObserveJob(name, started, err)
	if err != nil {
		s.logger.Error("job failed", "job", name, "durationMs", time.Since(started).Milliseconds(), "err", err)
		return err
	}
	s.logger.Info("job finished", "job", name, "durationMs", time.Since(started).Milliseconds())
	return nil
}

// Next reports when a job fires after t, in the scheduler's timezone.
func (s *Scheduler) Next(name string, t time.Time) (time.Time, error) {
	job, ok := s.byName[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ports.ErrUnknownJob, name)
	}
	sched, err := cron.ParseStandard(job.Spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t.In(s.loc)), nil
}

// Start runs the cron loop until ctx is done, then waits for running jobs.
// A job still running when its next tick arrives skips that tick.
func (s *Scheduler) Start(ctx context.Context) error {
	clog := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	for _, j := range s.jobs {
		name := j.Name
		if _, err := c.AddFunc(j.Spec, func() { _ = s.RunJob(ctx, name) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs), "timezone", s.loc.String())
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"restopos-backend/internal/service"
)

const (
	JobAggregateHourly = "aggregate-hourly"
	JobAggregateDaily  = "aggregate-daily"
	JobTTLCleanup      = "ttl-cleanup"
	JobBackupExport    = "backup-export"
	JobPurgeChanges    = "purge-changes"
)

// ChangePurger deletes processed document changes.
type ChangePurger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// Services are the job bodies.
type Services struct {
	Aggregation service.AggregationService
	TTL         service.TTLService
	Backup      service.BackupService
	Changes     ChangePurger
	// ChangeRetention defaults to 7 days.
	ChangeRetention time.Duration
}

// DefaultJobs builds the standard schedule. The purge job is omitted when
// Changes is nil.
func DefaultJobs(s Services, logger *slog.Logger) []Job {
	jobs := []Job{
		{Name: JobAggregateHourly, Spec: "5 * * * *", Run: s.Aggregation.RunHourly},
		{Name: JobAggregateDaily, Spec: "15 0 * * *", Run: s.Aggregation.RunDaily},
		{Name: JobTTLCleanup, Spec: "30 2 * * *", Run: func(ctx context.Context) error {
			return ttlError(s.TTL.Run(ctx))
		}},
		{Name: JobBackupExport, Spec: "0 3 * * *", Run: s.Backup.Run},
	}
	if s.Changes != nil {
		retention := s.ChangeRetention
		if retention <= 0 {
			retention = 7 * 24 * time.Hour
		}
		jobs = append(jobs, Job{Name: JobPurgeChanges, Spec: "45 3 * * *", Run: func(ctx context.Context) error {
			n, err := s.Changes.Purge(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			logger.Info("purged processed document changes", "deleted", n)
			return nil
		}})
	}
	return jobs
}

// ttlError joins the failed rules so the run is reported as failed while
// the other rules still counted.
func ttlError(results []service.TTLResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Collection, r.Err))
		}
	}
	return errors.Join(errs...)
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/logger"
	"restopos-backend/internal/ports"
	"restopos-backend/internal/service"
)

func bangkok(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	return loc
}

type purger struct {
	cutoff time.Time
	err    error
}

func (p *purger) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	p.cutoff = olderThan
	return 3, p.err
}

func testJobs(p ChangePurger) []Job {
	store := docstoretest.New()
	log := logger.Discard()
	return DefaultJobs(Services{
		Aggregation: service.AggregationService{Store: store, Logger: log, Location: time.UTC},
		TTL:         service.TTLService{Store: store, Logger: log},
		Backup:      service.BackupService{Store: store, Logger: log, Location: time.UTC},
		Changes:     p,
	}, log)
}

func TestScheduleFiresInLocalTime(t *testing.T) {
	loc := bangkok(t)
	s := New(loc, logger.Discard(), testJobs(&purger{})...)
	assert.Equal(t, []string{JobAggregateHourly, JobAggregateDaily, JobTTLCleanup, JobBackupExport, JobPurgeChanges}, s.Jobs())

	// 2026-04-10 10:07 in Bangkok.
	now := time.Date(2026, 4, 10, 3, 7, 0, 0, time.UTC)
	cases := map[string]time.Time{
		JobAggregateHourly: time.Date(2026, 4, 10, 11, 5, 0, 0, loc),
		JobAggregateDaily:  time.Date(2026, 4, 11, 0, 15, 0, 0, loc),
		JobTTLCleanup:      time.Date(2026, 4, 11, 2, 30, 0, 0, loc),
		JobBackupExport:    time.Date(2026, 4, 11, 3, 0, 0, 0, loc),
	}
	for name, want := range cases {
		next, err := s.Next(name, now)
		require.NoError(t, err, name)
		assert.True(t, want.Equal(next), "%s: got %s want %s", name, next, want)
	}

	_, err := s.Next("nope", now)
	assert.ErrorIs(t, err, ports.ErrUnknownJob)
}

func TestRunJob(t *testing.T) {
	var calls int
	s := New(time.UTC, logger.Discard(),
		Job{Name: "ok", Spec: "* * * * *", Run: func(context.Context) error { calls++; return nil }},
		Job{Name: "broken", Spec: "* * * * *", Run: func(context.Context) error { return errors.New("boom") }},
	)
	ctx := context.Background()

	require.NoError(t, s.RunJob(ctx, "ok"))
	assert.Equal(t, 1, calls)
	assert.EqualError(t, s.RunJob(ctx, "broken"), "boom")
	assert.ErrorIs(t, s.RunJob(ctx, "missing"), ports.ErrUnknownJob)
}

func TestStandardJobsRunAgainstEmptyStore(t *testing.T) {
	p := &purger{}
	s := New(time.UTC, logger.Discard(), testJobs(p)...)
	ctx := context.Background()

	for _, name := range s.Jobs() {
		assert.NoError(t, s.RunJob(ctx, name), name)
	}
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), p.cutoff, time.Minute)

	p.err = errors.New("relation missing")
	assert.Error(t, s.RunJob(ctx, JobPurgeChanges))
}

func TestPurgeJobOmittedWithoutSource(t *testing.T) {
	jobs := DefaultJobs(Services{}, logger.Discard())
	for _, j := range jobs {
		assert.NotEqual(t, JobPurgeChanges, j.Name)
	}
}

func TestTTLErrorJoinsFailedRules(t *testing.T) {
	assert.NoError(t, ttlError([]service.TTLResult{{Collection: "opsLogs", Deleted: 4}}))
	err := ttlError([]service.TTLResult{
		{Collection: "opsLogs", Err: errors.New("timeout")},
		{Collection: "notifications", Deleted: 2},
		{Collection: "privacyOpsLogs", Err: errors.New("denied")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opsLogs: timeout")
	assert.Contains(t, err.Error(), "privacyOpsLogs: denied")
}

func TestStartStopsWithContext(t *testing.T) {
	s := New(time.UTC, logger.Discard(), Job{Name: "noop", Spec: "0 0 1 1 *", Run: func(context.Context) error { return nil }})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(time.UTC, logger.Discard(), Job{Name: "bad", Spec: "every day", Run: func(context.Context) error { return nil }})
	assert.Error(t, s.Start(context.Background()))
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"restopos-backend/internal/db"
)

const (
	TaskQueued  = "queued"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// BackfillTask is one page of a master-data backfill.
type BackfillTask struct {
	ID         int64
	Collection string
	StartAfter string
	BatchSize  int
	Status     string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

type BackfillRepository struct {
	DB *db.Postgres
	// Lease is how long a claimed task stays invisible to other workers.
	Lease time.Duration
}

func (r BackfillRepository) Enqueue(ctx context.Context, t BackfillTask) (int64, error) {
	var id int64
	err := r.DB.Pool.QueryRow(ctx, `
		INSERT INTO backfill_tasks (collection, start_after, batch_size)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id
	`, t.Collection, t.StartAfter, t.BatchSize).Scan(&id)
	return id, err
}

// ClaimNext leases the oldest due task. It returns nil when nothing is due.
func (r BackfillRepository) ClaimNext(ctx context.Context) (*BackfillTask, error) {
	lease := r.Lease
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	var t BackfillTask
	err := r.DB.Pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM backfill_tasks
			WHERE status IN ('queued', 'running') AND run_after <= now()
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE backfill_tasks t
		SET status = 'running', attempts = t.attempts + 1, run_after = now() + make_interval(secs => $1)
		FROM next
		WHERE t.id = next.id
		RETURNING t.id, t.collection, COALESCE(t.start_after, ''), t.batch_size, t.status, t.attempts, t.created_at
	`, lease.Seconds()).Scan(&t.ID, &t.Collection, &t.StartAfter, &t.BatchSize, &t.Status, &t.Attempts, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r BackfillRepository) Finish(ctx context.Context, id int64) error {
	_, err := r.DB.Pool.Exec(ctx, `
		UPDATE backfill_tasks SET status = 'done', finished_at = now(), last_error = NULL WHERE id = $1
	`, id)
	return err
}

// Retry schedules the task again, or marks it failed when giveUp is set.
func (r BackfillRepository) Retry(ctx context.Context, id int64, lastErr string, runAfter time.Time, giveUp bool) error {
	status := TaskQueued
	if giveUp {
		status = TaskFailed
	}
	_, err := r.DB.Pool.Exec(ctx, `
		UPDATE backfill_tasks
		SET status = $2, last_error = $3, run_after = $4,
			finished_at = CASE WHEN $2 = 'failed' THEN now() ELSE NULL END
		WHERE id = $1
	`, id, status, lastErr, runAfter)
	return err
}

// List returns the most recent tasks, newest first.
func (r BackfillRepository) List(ctx context.Context, limit int) ([]BackfillTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, collection, COALESCE(start_after, ''), batch_size, status, attempts, COALESCE(last_error, ''), created_at
		FROM backfill_tasks ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BackfillTask
	for rows.Next() {
		var t BackfillTask
		if err := rows.Scan(&t.ID, &t.Collection, &t.StartAfter, &t.BatchSize, &t.Status, &t.Attempts, &t.LastError, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

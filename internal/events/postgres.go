package events

import (
	"context"
	"fmt"
	"time"

	"restopos-backend/internal/db"
)

// Channel is the NOTIFY channel raised by the documents trigger.
const Channel = "document_changes"

// PostgresSource reads the document_changes table.
type PostgresSource struct {
	DB *db.Postgres
}

var _ ChangeSource = PostgresSource{}

// Claim leases up to limit due changes by pushing next_attempt_at past the lease;
// a crashed worker's changes become due again when the lease runs out.
func (s PostgresSource) Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]Claimed, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM document_changes
			WHERE processed_at IS NULL AND abandoned_at IS NULL AND next_attempt_at <= now() AND attempts < $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE document_changes c
		SET attempts = c.attempts + 1, next_attempt_at = now() + make_interval(secs => $3)
		FROM due
		WHERE c.id = due.id
		RETURNING c.id, c.collection, c.doc_id, c.before, c.after, COALESCE(c.actor_id, ''),
			c.changed_at, c.pending_handlers, c.attempts
	`, maxAttempts, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim changes: %w", err)
	}
	defer rows.Close()

	var out []Claimed
	for rows.Next() {
		var cl Claimed
		if err := rows.Scan(&cl.ID, &cl.Collection, &cl.DocID, &cl.Before, &cl.After, &cl.ActorID,
			&cl.ChangedAt, &cl.Pending, &cl.Attempts); err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}

func (s PostgresSource) Complete(ctx context.Context, id int64) error {
	_, err := s.DB.Pool.Exec(ctx, `
		UPDATE document_changes SET processed_at = now(), pending_handlers = '{}', last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (s PostgresSource) Fail(ctx context.Context, id int64, pending []string, lastErr string, retryAt time.Time) error {
	_, err := s.DB.Pool.Exec(ctx, `
		UPDATE document_changes SET pending_handlers = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1
	`, id, pending, lastErr, retryAt)
	return err
}

// Abandon moves a change that exhausted its attempts to the dead letter state.
func (s PostgresSource) Abandon(ctx context.Context, id int64, pending []string, lastErr string) error {
	_, err := s.DB.Pool.Exec(ctx, `
		UPDATE document_changes SET pending_handlers = $2, last_error = $3, abandoned_at = now()
		WHERE id = $1
	`, id, pending, lastErr)
	return err
}

const purgeChangesSQL = `
	DELETE FROM document_changes
	WHERE (processed_at IS NOT NULL AND processed_at < $1)
		OR (abandoned_at IS NOT NULL AND abandoned_at < $1)
`

// Purge removes processed and abandoned changes older than the cutoff.
func (s PostgresSource) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.DB.Pool.Exec(ctx, purgeChangesSQL, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

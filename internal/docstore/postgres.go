package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"restopos-backend/internal/db"
)

const maxTxAttempts = 5

// Postgres is the Store backed by the documents table.
type Postgres struct {
	DB    *db.Postgres
	Guard WriteGuard
}

var _ Store = Postgres{}

const selectColumns = `SELECT id, COALESCE(tenant_id, ''), data, created_at, updated_at FROM documents`

func scanDocument(collection string, row pgx.Row) (*Document, error) {
	d := Document{Collection: collection}
	if err := row.Scan(&d.ID, &d.TenantID, &d.Data, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if d.Data == nil {
		d.Data = map[string]any{}
	}
	return &d, nil
}

func collectDocuments(collection string, rows pgx.Rows) ([]*Document, error) {
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		d, err := scanDocument(collection, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func getDocument(ctx context.Context, q db.Querier, collection, id string, lock bool) (*Document, error) {
	sql := selectColumns + ` WHERE collection=$1 AND id=$2`
	if lock {
		sql += ` FOR UPDATE`
	}
	d, err := scanDocument(collection, q.QueryRow(ctx, sql, collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s Postgres) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, s.DB.Pool, collection, id, false)
}

func (s Postgres) GetMany(ctx context.Context, collection string, ids []string) (map[string]*Document, error) {
	out := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Pool.Query(ctx, selectColumns+` WHERE collection=$1 AND id = ANY($2)`, collection, ids)
	if err != nil {
		return nil, err
	}
	docs, err := collectDocuments(collection, rows)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

func (s Postgres) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	payload := Normalize(data)
	if err := checkGuard(s.Guard, collection, payload); err != nil {
		return "", err
	}
	id, err := insertWithFreshID(uuid.NewString, func(id string) error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				INSERT INTO documents (collection, id, tenant_id, data, created_at, updated_at)
				VALUES ($1,$2,NULLIF($3,''),$4, now(), now())
			`, collection, id, TenantOf(payload), payload)
			return err
		})
	})
	if err != nil {
		return "", fmt.Errorf("create %s document: %w", collection, err)
	}
	return id, nil
}

const maxCreateAttempts = 3

// insertWithFreshID draws a new id whenever insert hits an existing one.
func insertWithFreshID(newID func() string, insert func(id string) error) (string, error) {
	var err error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := newID()
		if err = insert(id); err == nil {
			return id, nil
		}
		if !db.IsUniqueViolation(err) {
			return "", err
		}
	}
	return "", err
}

func (s Postgres) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return setDocument(ctx, tx, s.Guard, collection, id, data, merge)
	})
}

func (s Postgres) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return updateDocument(ctx, tx, collection, id, updates)
	})
}

func (s Postgres) Delete(ctx context.Context, collection, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
		return err
	})
}

func (s Postgres) DeleteMany(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id = ANY($2)`, collection, ids)
		deleted = int(tag.RowsAffected())
		return err
	})
	return deleted, err
}

func (s Postgres) Query(ctx context.Context, q Query) ([]*Document, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return collectDocuments(q.Collection, rows)
}

// RunTransaction runs fn in a transaction, retrying on serialization failures and deadlocks.
func (s Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.inTx(ctx, func(tx pgx.Tx) error {
			return fn(ctx, pgTx{tx: tx, guard: s.Guard})
		})
		if err == nil || !db.IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 20 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, err)
}

// inTx begins a transaction tagged with the context actor, so the change feed can
// attribute the write.
func (s Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if actor := ActorFrom(ctx); actor != "" {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.actor_id', $1, true)`, actor); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func setDocument(ctx context.Context, tx pgx.Tx, guard WriteGuard, collection, id string, data map[string]any, merge bool) error {
	payload := Normalize(data)
	if merge {
		existing, err := getDocument(ctx, tx, collection, id, true)
		switch {
		case err == nil:
			merged := existing.Data
			MergeInto(merged, payload)
			payload = merged
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	if err := checkGuard(guard, collection, payload); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO documents (collection, id, tenant_id, data, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),$4, now(), now())
		ON CONFLICT (collection, id) DO UPDATE
		SET tenant_id=EXCLUDED.tenant_id, data=EXCLUDED.data, updated_at=now()
	`, collection, id, TenantOf(payload), payload)
	return err
}

func updateDocument(ctx context.Context, tx pgx.Tx, collection, id string, updates []Update) error {
	existing, err := getDocument(ctx, tx, collection, id, true)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	ApplyUpdates(existing.Data, updates)
	_, err = tx.Exec(ctx, `
		UPDATE documents SET data=$3, tenant_id=NULLIF($4,''), updated_at=now()
		WHERE collection=$1 AND id=$2
	`, collection, id, existing.Data, TenantOf(existing.Data))
	return err
}

type pgTx struct {
	tx    pgx.Tx
	guard WriteGuard
}

func (t pgTx) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, t.tx, collection, id, true)
}

func (t pgTx) GetAll(ctx context.Context, collection string, ids []string) ([]*Document, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	// lock in a stable order so concurrent settlements cannot deadlock on shared rows
	sort.Strings(unique)
	rows, err := t.tx.Query(ctx, selectColumns+` WHERE collection=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, collection, unique)
	if err != nil {
		return nil, err
	}
	docs, err := collectDocuments(collection, rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]*Document, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

func (t pgTx) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return setDocument(ctx, t.tx, t.guard, collection, id, data, merge)
}

func (t pgTx) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return updateDocument(ctx, t.tx, collection, id, updates)
}

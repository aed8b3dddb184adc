// Package docstore is a small JSON document database on top of PostgreSQL.
//
// Every document lives in one row of the documents table keyed by (collection, id).
// Writes fire a row trigger that records before/after snapshots in document_changes,
// which internal/events turns into handler invocations.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// DocumentID orders or filters by the document key instead of a data field.
const DocumentID = "__name__"

// Document is a stored record.
type Document struct {
	Collection string
	ID         string
	TenantID   string
	Data       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is the document database used by handlers, jobs and callables.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	GetMany(ctx context.Context, collection string, ids []string) (map[string]*Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Update(ctx context.Context, collection, id string, updates ...Update) error
	Delete(ctx context.Context, collection, id string) error
	DeleteMany(ctx context.Context, collection string, ids []string) (int, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside RunTransaction. Reads lock the returned rows
// until commit.
type Tx interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// GetAll returns documents in the order of ids, with nil for missing ones.
	GetAll(ctx context.Context, collection string, ids []string) ([]*Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Update(ctx context.Context, collection, id string, updates ...Update) error
}

// WriteGuard validates a full document before a create/set. A non-empty result
// rejects the write.
type WriteGuard func(collection string, data map[string]any) []string

// GuardError reports every problem a WriteGuard found.
type GuardError struct {
	Collection string
	Problems   []string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s write rejected: %s", e.Collection, strings.Join(e.Problems, "; "))
}

func checkGuard(guard WriteGuard, collection string, data map[string]any) error {
	if guard == nil {
		return nil
	}
	if problems := guard(collection, data); len(problems) > 0 {
		return &GuardError{Collection: collection, Problems: problems}
	}
	return nil
}

// Op is a query comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpIn  Op = "in"
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpGTE Op = ">="
)

// Filter compares the value at a dotted field path. Supported value types are
// string, bool, numbers, time.Time, nil (OpEq only) and []string (OpIn only).
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// StartAfter is a document id; only valid when ordering by DocumentID.
	StartAfter string
	Limit      int
}

// Where appends a filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

type actorKey struct{}

// WithActor tags writes made with ctx with the acting user id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor set by WithActor, if any.
func ActorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// TenantOf extracts the tenantId field of a document payload.
func TenantOf(data map[string]any) string {
	v, _ := data["tenantId"].(string)
	return strings.TrimSpace(v)
}

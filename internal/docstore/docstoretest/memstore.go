// Package docstoretest provides an in-memory docstore.Store for tests.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"restopos-backend/internal/docstore"
)

// Store keeps documents in memory. Transactions hold a single lock and work on a copy
// that replaces the live data on success.
type Store struct {
	Guard docstore.WriteGuard

	mu   sync.Mutex
	data map[string]map[string]*docstore.Document

	// FailUpdate, when set, is consulted before every field update. Returning an
	// error makes that update fail.
	FailUpdate func(collection, id string) error
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: map[string]map[string]*docstore.Document{}}
}

// Seed writes a document without running the guard.
func (s *Store) Seed(collection, id string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.data, collection, id, docstore.Normalize(data))
}

// Data returns a copy of a document payload, or nil.
func (s *Store) Data(collection, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.data[collection][id]; d != nil {
		return docstore.Clone(d.Data)
	}
	return nil
}

// All returns copies of every document in collection, ordered by id.
func (s *Store) All(collection string) []*docstore.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]*docstore.Document, 0, len(s.data[collection]))
	for _, d := range s.data[collection] {
		docs = append(docs, copyDoc(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func put(all map[string]map[string]*docstore.Document, collection, id string, data map[string]any) {
	if all[collection] == nil {
		all[collection] = map[string]*docstore.Document{}
	}
	now := time.Now().UTC()
	if d, ok := all[collection][id]; ok {
		d.Data = data
		d.TenantID = docstore.TenantOf(data)
		d.UpdatedAt = now
		return
	}
	all[collection][id] = &docstore.Document{
		Collection: collection,
		ID:         id,
		TenantID:   docstore.TenantOf(data),
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func copyDoc(d *docstore.Document) *docstore.Document {
	c := *d
	c.Data = docstore.Clone(d.Data)
	return &c
}

func (s *Store) Get(_ context.Context, collection, id string) (*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data[collection][id]
	if d == nil {
		return nil, docstore.ErrNotFound
	}
	return copyDoc(d), nil
}

func (s *Store) GetMany(_ context.Context, collection string, ids []string) (map[string]*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*docstore.Document{}
	for _, id := range ids {
		if d := s.data[collection][id]; d != nil {
			out[id] = copyDoc(d)
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	return id, s.Set(ctx, collection, id, data, false)
}

func (s *Store) Set(_ context.Context, collection, id string, data map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s: s, data: s.data}.set(collection, id, data, merge)
}

func (s *Store) Update(_ context.Context, collection, id string, updates ...docstore.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s: s, data: s.data}.update(collection, id, updates)
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
	return nil
}

func (s *Store) DeleteMany(_ context.Context, collection string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.data[collection][id]; ok {
			delete(s.data[collection], id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Query(_ context.Context, q docstore.Query) ([]*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.StartAfter != "" && q.OrderBy != docstore.DocumentID {
		return nil, errors.New("startAfter requires ordering by document id")
	}
	var docs []*docstore.Document
	for _, d := range s.data[q.Collection] {
		if docstore.Matches(d, q.Filters) {
			docs = append(docs, copyDoc(d))
		}
	}
	return docstore.SortAndPage(docs, q), nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := make(map[string]map[string]*docstore.Document, len(s.data))
	for c, docs := range s.data {
		working[c] = make(map[string]*docstore.Document, len(docs))
		for id, d := range docs {
			working[c][id] = copyDoc(d)
		}
	}
	if err := fn(ctx, memTx{s: s, data: working}); err != nil {
		return err
	}
	s.data = working
	return nil
}

type memTx struct {
	s    *Store
	data map[string]map[string]*docstore.Document
}

func (t memTx) Get(_ context.Context, collection, id string) (*docstore.Document, error) {
	d := t.data[collection][id]
	if d == nil {
		return nil, docstore.ErrNotFound
	}
	return copyDoc(d), nil
}

func (t memTx) GetAll(_ context.Context, collection string, ids []string) ([]*docstore.Document, error) {
	out := make([]*docstore.Document, len(ids))
	for i, id := range ids {
		if d := t.data[collection][id]; d != nil {
			out[i] = copyDoc(d)
		}
	}
	return out, nil
}

func (t memTx) Set(_ context.Context, collection, id string, data map[string]any, merge bool) error {
	return t.set(collection, id, data, merge)
}

func (t memTx) Update(_ context.Context, collection, id string, updates ...docstore.Update) error {
	return t.update(collection, id, updates)
}

func (t memTx) set(collection, id string, data map[string]any, merge bool) error {
	payload := docstore.Normalize(data)
	if existing := t.data[collection][id]; merge && existing != nil {
		merged := docstore.Clone(existing.Data)
		docstore.MergeInto(merged, payload)
		payload = merged
	}
	if t.s.Guard != nil {
		if problems := t.s.Guard(collection, payload); len(problems) > 0 {
			return &docstore.GuardError{Collection: collection, Problems: problems}
		}
	}
	put(t.data, collection, id, payload)
	return nil
}

func (t memTx) update(collection, id string, updates []docstore.Update) error {
	if t.s.FailUpdate != nil {
		if err := t.s.FailUpdate(collection, id); err != nil {
			return err
		}
	}
	d := t.data[collection][id]
	if d == nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	data := docstore.Clone(d.Data)
	docstore.ApplyUpdates(data, updates)
	put(t.data, collection, id, data)
	return nil
}

// Package events delivers document changes recorded by the database trigger to
// registered handlers, with per-handler retry.
package events

import (
	"context"
	"time"
)

type Kind int

const (
	Created Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one write to one document with its before and after snapshots.
type Change struct {
	ID         int64
	Collection string
	DocID      string
	Before     map[string]any
	After      map[string]any
	ActorID    string
	ChangedAt  time.Time
}

func (c Change) Kind() Kind {
	switch {
	case c.Before == nil && c.After != nil:
		return Created
	case c.Before != nil && c.After == nil:
		return Deleted
	default:
		return Updated
	}
}

// FieldString reads a top-level string field from a snapshot.
func FieldString(snapshot map[string]any, field string) string {
	v, _ := snapshot[field].(string)
	return v
}

// HandlerFunc reacts to a change. A returned error schedules a redelivery of the
// same change to the same handler.
type HandlerFunc func(ctx context.Context, c Change) error

// Route binds a handler to the changes it cares about.
type Route struct {
	Name string
	// Collections limits the route; empty means every collection.
	Collections []string
	// Except skips collections when Collections is empty.
	Except []string
	// Kinds limits the route; empty means every kind.
	Kinds  []Kind
	Handle HandlerFunc
}

func (r Route) matches(c Change) bool {
	if len(r.Collections) > 0 && !contains(r.Collections, c.Collection) {
		return false
	}
	if contains(r.Except, c.Collection) {
		return false
	}
	if len(r.Kinds) > 0 {
		k := c.Kind()
		for _, want := range r.Kinds {
			if want == k {
				return true
			}
		}
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

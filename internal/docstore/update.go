package docstore

import (
	"encoding/json"
	"strings"
	"time"
)

type updateOp int

const (
	opSet updateOp = iota
	opIncrement
	opDelete
)

// Update is a field-level change addressed by a dotted path ("punchCards.c1").
type Update struct {
	Path  string
	Value any
	op    updateOp
}

// SetField writes value at path, creating intermediate maps.
func SetField(path string, value any) Update {
	return Update{Path: path, Value: value, op: opSet}
}

// Increment adds delta to the number at path. Missing or non-numeric values count as 0.
func Increment(path string, delta float64) Update {
	return Update{Path: path, Value: delta, op: opIncrement}
}

// DeleteField removes path.
func DeleteField(path string) Update {
	return Update{Path: path, op: opDelete}
}

// ApplyUpdates applies updates to data in place.
func ApplyUpdates(data map[string]any, updates []Update) {
	for _, u := range updates {
		parts := strings.Split(u.Path, ".")
		parent := data
		for _, p := range parts[:len(parts)-1] {
			next, ok := parent[p].(map[string]any)
			if !ok {
				if u.op == opDelete {
					parent = nil
					break
				}
				next = map[string]any{}
				parent[p] = next
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		leaf := parts[len(parts)-1]
		switch u.op {
		case opSet:
			parent[leaf] = normalize(u.Value)
		case opIncrement:
			cur, _ := AsFloat(parent[leaf])
			parent[leaf] = cur + u.Value.(float64)
		case opDelete:
			delete(parent, leaf)
		}
	}
}

// MergeInto deep-merges src into dst: nested maps merge, everything else overwrites.
func MergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				MergeInto(dm, sm)
				continue
			}
			dst[k] = Clone(sm)
			continue
		}
		dst[k] = normalize(v)
	}
}

// Clone deep-copies a document payload.
func Clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return t
	}
}

// normalize keeps payloads in their JSON shape so stored and in-memory values compare equal.
func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		if ts, ok := timestampObject(t); ok {
			return ts.Format(time.RFC3339Nano)
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalize(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	default:
		return v
	}
}

// timestampObject recognizes the {_seconds,_nanoseconds} shape that Firebase clients
// serialize timestamps as, so stored times stay comparable as RFC 3339 text.
func timestampObject(m map[string]any) (time.Time, bool) {
	if len(m) == 0 || len(m) > 2 {
		return time.Time{}, false
	}
	sec, ok := AsFloat(m["_seconds"])
	if !ok {
		return time.Time{}, false
	}
	var nanos float64
	if raw, present := m["_nanoseconds"]; present {
		if nanos, ok = AsFloat(raw); !ok {
			return time.Time{}, false
		}
	} else if len(m) != 1 {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), int64(nanos)).UTC(), true
}

// Normalize converts a payload built in Go into its stored JSON shape.
func Normalize(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return normalize(data).(map[string]any)
}

// AsFloat reads a JSON number, tolerating Go numeric types.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

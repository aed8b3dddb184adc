package docstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type valueKind int

const (
	kindText valueKind = iota
	kindNumber
	kindTime
	kindBool
	kindNull
	kindTextList
)

func kindOf(v any) (valueKind, error) {
	switch v.(type) {
	case nil:
		return kindNull, nil
	case string:
		return kindText, nil
	case bool:
		return kindBool, nil
	case int, int32, int64, float32, float64:
		return kindNumber, nil
	case time.Time:
		return kindTime, nil
	case []string:
		return kindTextList, nil
	default:
		return 0, fmt.Errorf("unsupported filter value %T", v)
	}
}

// buildQuery renders q as SQL against the documents table.
func buildQuery(q Query) (string, []any, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("query collection is required")
	}
	args := []any{q.Collection}
	where := []string{"collection = $1"}
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	orderKind := kindText
	for _, f := range q.Filters {
		kind, err := kindOf(f.Value)
		if err != nil {
			return "", nil, err
		}
		if f.Field == q.OrderBy {
			orderKind = kind
		}
		clause, err := filterSQL(f, kind, param)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
	}

	if q.StartAfter != "" {
		if q.OrderBy != DocumentID {
			return "", nil, fmt.Errorf("startAfter requires ordering by document id")
		}
		op := ">"
		if q.Descending {
			op = "<"
		}
		where = append(where, "id "+op+" "+param(q.StartAfter))
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	order := "id " + dir
	if q.OrderBy != "" && q.OrderBy != DocumentID {
		order = fmt.Sprintf("%s %s NULLS LAST, id %s", typedExpr(orderKind, param(splitPath(q.OrderBy))), dir, dir)
	}

	sql := "SELECT id, COALESCE(tenant_id, ''), data, created_at, updated_at FROM documents WHERE " +
		strings.Join(where, " AND ") + " ORDER BY " + order
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return sql, args, nil
}

func filterSQL(f Filter, kind valueKind, param func(any) string) (string, error) {
	if f.Field == DocumentID {
		switch {
		case f.Op == OpIn && kind == kindTextList:
			return "id = ANY(" + param(f.Value) + ")", nil
		case kind == kindText:
			return "id " + sqlOp(f.Op) + " " + param(f.Value), nil
		default:
			return "", fmt.Errorf("document id filters take strings")
		}
	}
	path := param(splitPath(f.Field))
	switch f.Op {
	case OpIn:
		if kind != kindTextList {
			return "", fmt.Errorf("%s: 'in' filters take []string", f.Field)
		}
		return fmt.Sprintf("(data #>> %s::text[]) = ANY(%s)", path, param(f.Value)), nil
	case OpEq:
		switch kind {
		case kindNull:
			return fmt.Sprintf("(data #> %s::text[] IS NULL OR jsonb_typeof(data #> %s::text[]) = 'null')", path, path), nil
		case kindBool:
			return fmt.Sprintf("(data #> %s::text[]) = to_jsonb(%s::boolean)", path, param(f.Value)), nil
		}
		fallthrough
	case OpLT, OpLTE, OpGT, OpGTE:
		if kind == kindNull || kind == kindBool || kind == kindTextList {
			return "", fmt.Errorf("%s: operator %s does not accept this value", f.Field, f.Op)
		}
		return fmt.Sprintf("%s %s %s", typedExpr(kind, path), sqlOp(f.Op), param(f.Value)), nil
	default:
		return "", fmt.Errorf("unsupported operator %q", f.Op)
	}
}

func typedExpr(kind valueKind, path string) string {
	switch kind {
	case kindNumber:
		return fmt.Sprintf("try_numeric(data #>> %s::text[])", path)
	case kindTime:
		return fmt.Sprintf("try_timestamptz(data #>> %s::text[])", path)
	default:
		return fmt.Sprintf("(data #>> %s::text[])", path)
	}
}

func sqlOp(op Op) string {
	if op == OpEq {
		return "="
	}
	return string(op)
}

func splitPath(field string) []string {
	return strings.Split(field, ".")
}

// Lookup returns the value at a dotted path.
func Lookup(data map[string]any, field string) (any, bool) {
	var cur any = data
	for _, p := range splitPath(field) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Matches evaluates filters against a document the same way the SQL renderer does.
// Values that cannot be read as the filter's type never match.
func Matches(doc *Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

func matchFilter(doc *Document, f Filter) bool {
	var raw any
	var present bool
	if f.Field == DocumentID {
		raw, present = doc.ID, true
	} else {
		raw, present = Lookup(doc.Data, f.Field)
	}
	kind, err := kindOf(f.Value)
	if err != nil {
		return false
	}
	switch kind {
	case kindNull:
		return !present || raw == nil
	case kindBool:
		b, ok := raw.(bool)
		return ok && f.Op == OpEq && b == f.Value.(bool)
	case kindTextList:
		s, ok := textOf(raw)
		if !ok {
			return false
		}
		for _, v := range f.Value.([]string) {
			if v == s {
				return true
			}
		}
		return false
	case kindNumber:
		a, ok := numberOf(raw)
		b, _ := AsFloat(f.Value)
		return ok && compare(cmpFloat(a, b), f.Op)
	case kindTime:
		s, ok := raw.(string)
		if !ok {
			return false
		}
		a, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return false
		}
		return compare(a.Compare(f.Value.(time.Time)), f.Op)
	default:
		s, ok := textOf(raw)
		return ok && compare(strings.Compare(s, f.Value.(string)), f.Op)
	}
}

func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return fmt.Sprint(t), true
	case float64:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

func numberOf(v any) (float64, bool) {
	if f, ok := AsFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compare(c int, op Op) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpLT:
		return c < 0
	case OpLTE:
		return c <= 0
	case OpGT:
		return c > 0
	case OpGTE:
		return c >= 0
	default:
		return false
	}
}

// SortAndPage orders docs and applies StartAfter/Limit like the SQL renderer.
func SortAndPage(docs []*Document, q Query) []*Document {
	orderKind := kindText
	for _, f := range q.Filters {
		if f.Field == q.OrderBy {
			orderKind, _ = kindOf(f.Value)
		}
	}
	key := func(d *Document) (any, bool) {
		if q.OrderBy == "" || q.OrderBy == DocumentID {
			return d.ID, true
		}
		raw, ok := Lookup(d.Data, q.OrderBy)
		if !ok {
			return nil, false
		}
		switch orderKind {
		case kindNumber:
			return numberOf(raw)
		case kindTime:
			s, _ := raw.(string)
			t, err := time.Parse(time.RFC3339Nano, s)
			return t, err == nil
		default:
			return textOf(raw)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := key(docs[i])
		b, bok := key(docs[j])
		if aok != bok {
			return aok // NULLS LAST
		}
		c := 0
		if aok {
			switch av := a.(type) {
			case float64:
				c = cmpFloat(av, b.(float64))
			case time.Time:
				c = av.Compare(b.(time.Time))
			case string:
				c = strings.Compare(av, b.(string))
			}
		}
		if c == 0 {
			c = strings.Compare(docs[i].ID, docs[j].ID)
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})

	out := docs[:0:0]
	for _, d := range docs {
		if q.StartAfter != "" {
			if (!q.Descending && d.ID <= q.StartAfter) || (q.Descending && d.ID >= q.StartAfter) {
				continue
			}
		}
		out = append(out, d)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

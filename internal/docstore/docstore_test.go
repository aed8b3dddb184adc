package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/db"
)

func TestApplyUpdates(t *testing.T) {
	data := map[string]any{
		"stockQuantity": 10.0,
		"punchCards":    map[string]any{"c1": 2.0},
		"name":          "Basil",
	}
	ApplyUpdates(data, []Update{
		Increment("stockQuantity", -2.5),
		Increment("punchCards.c1", 3),
		Increment("punchCards.c2", 1),
		SetField("settlement.stock", true),
		DeleteField("name"),
		DeleteField("missing.path"),
	})

	assert.Equal(t, 7.5, data["stockQuantity"])
	assert.Equal(t, map[string]any{"c1": 5.0, "c2": 1.0}, data["punchCards"])
	assert.Equal(t, map[string]any{"stock": true}, data["settlement"])
	assert.NotContains(t, data, "name")
	assert.NotContains(t, data, "missing")
}

func TestIncrementTreatsNonNumericAsZero(t *testing.T) {
	data := map[string]any{"timesUsed": "seven"}
	ApplyUpdates(data, []Update{Increment("timesUsed", 1)})
	assert.Equal(t, 1.0, data["timesUsed"])
}

func TestMergeIntoIsDeep(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"x": 1.0, "y": 2.0}, "b": "keep"}
	MergeInto(dst, map[string]any{"a": map[string]any{"y": 3}, "c": []string{"p"}})
	assert.Equal(t, map[string]any{"x": 1.0, "y": 3.0}, dst["a"])
	assert.Equal(t, "keep", dst["b"])
	assert.Equal(t, []any{"p"}, dst["c"])
}

func TestNormalizeTimes(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	out := Normalize(map[string]any{"createdAt": ts, "n": 3})
	assert.Equal(t, "2024-03-01T03:00:00Z", out["createdAt"])
	assert.Equal(t, 3.0, out["n"])
}

func TestNormalizeTimestampObjects(t *testing.T) {
	out := Normalize(map[string]any{
		"createdAt":  map[string]any{"_seconds": 1700000000.0, "_nanoseconds": 250000000.0},
		"closedAt":   map[string]any{"_seconds": int64(1700000000)},
		"punchCards": map[string]any{"_seconds": 3.0, "camp1": 2.0},
	})
	assert.Equal(t, "2023-11-14T22:13:20.25Z", out["createdAt"])
	assert.Equal(t, "2023-11-14T22:13:20Z", out["closedAt"])
	assert.Equal(t, map[string]any{"_seconds": 3.0, "camp1": 2.0}, out["punchCards"])
}

func TestBuildQueryTTLShape(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := Query{Collection: "analytics_exports", OrderBy: "completedAt", Limit: 200}.
		Where("completedAt", OpLT, cutoff).
		Where("status", OpIn, []string{"completed", "failed"})

	sql, args, err := buildQuery(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "try_timestamptz(data #>> $2::text[]) < $3")
	assert.Contains(t, sql, "(data #>> $4::text[]) = ANY($5)")
	assert.Contains(t, sql, "ORDER BY try_timestamptz(data #>> $6::text[]) ASC NULLS LAST, id ASC")
	assert.Contains(t, sql, "LIMIT 200")
	assert.Equal(t, []any{"analytics_exports", []string{"completedAt"}, cutoff, []string{"status"}, []string{"completed", "failed"}, []string{"completedAt"}}, args)
}

func TestBuildQueryRejectsBadFilters(t *testing.T) {
	_, _, err := buildQuery(Query{Collection: "orders"}.Where("status", OpIn, "completed"))
	assert.Error(t, err)

	_, _, err = buildQuery(Query{Collection: "orders", StartAfter: "o1"})
	assert.Error(t, err)

	_, _, err = buildQuery(Query{}.Where("status", OpEq, "x"))
	assert.Error(t, err)
}

func TestBuildQueryPagesByID(t *testing.T) {
	sql, args, err := buildQuery(Query{Collection: "menu_items", OrderBy: DocumentID, StartAfter: "m10", Limit: 50})
	require.NoError(t, err)
	assert.Contains(t, sql, "id > $2")
	assert.Contains(t, sql, "ORDER BY id ASC LIMIT 50")
	assert.Equal(t, []any{"menu_items", "m10"}, args)
}

func TestMatchesAndSort(t *testing.T) {
	docs := []*Document{
		{ID: "b", Data: map[string]any{"createdAt": "2024-01-02T00:00:00Z", "isActive": true}},
		{ID: "a", Data: map[string]any{"createdAt": "2024-01-01T00:00:00Z", "isActive": true}},
		{ID: "c", Data: map[string]any{"isActive": false}},
	}
	cutoff := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	q := Query{Collection: "notifications", OrderBy: "createdAt", Limit: 1}.Where("createdAt", OpLT, cutoff)

	var matched []*Document
	for _, d := range docs {
		if Matches(d, q.Filters) {
			matched = append(matched, d)
		}
	}
	require.Len(t, matched, 2)
	page := SortAndPage(matched, q)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	assert.True(t, Matches(docs[0], []Filter{{Field: "isActive", Op: OpEq, Value: true}}))
	assert.False(t, Matches(docs[2], []Filter{{Field: "isActive", Op: OpEq, Value: true}}))
	assert.True(t, Matches(docs[2], []Filter{{Field: "createdAt", Op: OpEq, Value: nil}}))
}

func TestGuardError(t *testing.T) {
	guard := WriteGuard(func(collection string, data map[string]any) []string {
		return []string{"name is required", "price must be >= 0"}
	})
	err := checkGuard(guard, "menu_items", map[string]any{})
	var ge *GuardError
	require.ErrorAs(t, err, &ge)
	assert.Len(t, ge.Problems, 2)
	assert.Contains(t, err.Error(), "name is required; price must be >= 0")
}

func TestInsertWithFreshIDRetriesCollisions(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	var tried []string
	id, err := insertWithFreshID(next, func(id string) error {
		tried = append(tried, id)
		if id == "a" {
			return &pgconn.PgError{Code: "23505"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b", id)
	assert.Equal(t, []string{"a", "b"}, tried)

	_, err = insertWithFreshID(next, func(string) error { return &pgconn.PgError{Code: "23505"} })
	assert.True(t, db.IsUniqueViolation(err))
	assert.Empty(t, ids)

	boom := errors.New("connection reset")
	ids = []string{"f", "g"}
	_, err = insertWithFreshID(next, func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"g"}, ids)
}

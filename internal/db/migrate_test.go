package db

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// latestDefinition returns the body of the last migration that mentions marker.
func latestDefinition(t *testing.T, marker string) string {
	t.Helper()
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)
	sort.Strings(names)
	var last string
	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		require.NoError(t, err)
		if i := strings.LastIndex(string(body), marker); i >= 0 {
			last = string(body[i:])
		}
	}
	require.NotEmpty(t, last, marker)
	return last
}

func TestTimestampParserIsNotImmutable(t *testing.T) {
	def := latestDefinition(t, "FUNCTION try_timestamptz")
	_, attrs, found := strings.Cut(def, "$$ LANGUAGE")
	require.True(t, found)
	attrs, _, _ = strings.Cut(attrs, "\n")
	assert.Contains(t, attrs, "STABLE")
	assert.NotContains(t, attrs, "IMMUTABLE")
	assert.Contains(t, attrs, "SET timezone = 'UTC'")
}

func TestChangeFeedHasDeadLetterColumn(t *testing.T) {
	assert.Contains(t, latestDefinition(t, "document_changes"), "abandoned_at")
	assert.Contains(t, latestDefinition(t, "document_changes_pending_idx"), "abandoned_at IS NULL")
}

package rediskv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPatternStatsGeneralizesNumericSegments(t *testing.T) {
	keys := []string{
		"user:1:profile",
		"user:2:profile",
		"user:42:profile",
		"session:abc",
		"session:def",
		"counter",
	}

	stats := KeyPatternStats(keys)

	require.Len(t, stats, 3)
	assert.Equal(t, "user:*:profile", stats[0].Pattern)
	assert.Equal(t, 3, stats[0].Count)
	assert.Equal(t, "user:1:profile", stats[0].Sample)

	assert.Equal(t, "session:abc", stats[1].Pattern, "non-numeric segments stay verbatim")
	assert.Equal(t, 1, stats[1].Count)
}

func TestKeyPatternStatsOrdering(t *testing.T) {
	keys := []string{"b:1", "a:1", "a:2"}

	stats := KeyPatternStats(keys)

	require.Len(t, stats, 2)
	assert.Equal(t, "a:*", stats[0].Pattern, "higher counts come first")
	assert.Equal(t, "b:*", stats[1].Pattern)
}

func TestKeyPatternStatsTiesSortByPattern(t *testing.T) {
	stats := KeyPatternStats([]string{"zebra:1", "apple:1"})

	require.Len(t, stats, 2)
	assert.Equal(t, "apple:*", stats[0].Pattern)
	assert.Equal(t, "zebra:*", stats[1].Pattern)
}

func TestKeyPatternStatsEmpty(t *testing.T) {
	assert.Empty(t, KeyPatternStats(nil))
}

func TestParseCommandJSONDocument(t *testing.T) {
	args, err := parseCommand(`{"command": ["HGETALL", "user:1:profile"]}`)

	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "HGETALL", args[0])
	assert.Equal(t, "user:1:profile", args[1])
}

func TestParseCommandWhitespaceString(t *testing.T) {
	args, err := parseCommand("  GET user:1  ")

	require.NoError(t, err)
	assert.Equal(t, []any{"GET", "user:1"}, args)
}

func TestParseCommandBadJSON(t *testing.T) {
	_, err := parseCommand(`{"command": [`)
	assert.Error(t, err)
}

func TestCommandResultShapes(t *testing.T) {
	arr := commandResult([]any{"a", "b"})
	assert.Equal(t, []string{"index", "value"}, arr.Columns)
	require.Len(t, arr.Rows, 2)
	assert.Equal(t, 0, arr.Rows[0]["index"])
	assert.Equal(t, "a", arr.Rows[0]["value"])

	hash := commandResult(map[string]any{"name": "alice"})
	assert.Equal(t, []string{"field", "value"}, hash.Columns)
	require.Len(t, hash.Rows, 1)
	assert.Equal(t, "name", hash.Rows[0]["field"])

	scalar := commandResult("PONG")
	assert.Equal(t, []string{"value"}, scalar.Columns)
	require.Len(t, scalar.Rows, 1)
	assert.Equal(t, "PONG", scalar.Rows[0]["value"])
}

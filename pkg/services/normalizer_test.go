package services

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
)

func TestNormalizeConvertsTemporalValues(t *testing.T) {
	stamp := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	raw := &datasource.RawResult{
		Columns: []string{"id", "created_at", "elapsed"},
		Rows: []map[string]any{
			{"id": 1, "created_at": stamp, "elapsed": 90 * time.Second},
		},
	}

	out := NewResultNormalizer(100).Normalize(raw)

	require.Len(t, out.Rows, 1)
	assert.Equal(t, "2025-03-15T09:00:00Z", out.Rows[0]["created_at"])
	assert.Equal(t, "1m30s", out.Rows[0]["elapsed"])

	// The whole envelope must survive JSON encoding.
	_, err := json.Marshal(out)
	require.NoError(t, err)
}

func TestNormalizeConvertsDriverScalars(t *testing.T) {
	raw := &datasource.RawResult{
		Columns: []string{"blob", "bigint", "bigfloat"},
		Rows: []map[string]any{
			{
				"blob":     []byte("hello"),
				"bigint":   big.NewInt(9223372036854775807),
				"bigfloat": big.NewFloat(2.5),
			},
		},
	}

	out := NewResultNormalizer(100).Normalize(raw)

	assert.Equal(t, "hello", out.Rows[0]["blob"])
	assert.Equal(t, "9223372036854775807", out.Rows[0]["bigint"])
	assert.Equal(t, "2.5", out.Rows[0]["bigfloat"])
}

func TestNormalizeRecursesIntoNestedValues(t *testing.T) {
	stamp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := &datasource.RawResult{
		Columns: []string{"doc"},
		Rows: []map[string]any{
			{"doc": map[string]any{
				"updated": stamp,
				"tags":    []any{"a", stamp},
			}},
		},
	}

	out := NewResultNormalizer(100).Normalize(raw)

	doc, ok := out.Rows[0]["doc"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01T00:00:00Z", doc["updated"])

	tags, ok := doc["tags"].([]any)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01T00:00:00Z", tags[1])
}

func TestNormalizeCapsRows(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	raw := &datasource.RawResult{Columns: []string{"n"}, Rows: rows}

	out := NewResultNormalizer(3).Normalize(raw)

	assert.Len(t, out.Rows, 3)
	assert.Equal(t, 3, out.RowCount)
	assert.True(t, out.Truncated)
}

func TestNormalizeUnderCapNotTruncated(t *testing.T) {
	raw := &datasource.RawResult{
		Columns: []string{"n"},
		Rows:    []map[string]any{{"n": 1}},
	}

	out := NewResultNormalizer(100).Normalize(raw)

	assert.Equal(t, 1, out.RowCount)
	assert.False(t, out.Truncated)
}

func TestNormalizeStatementResult(t *testing.T) {
	raw := &datasource.RawResult{RowsAffected: 7}

	out := NewResultNormalizer(100).Normalize(raw)

	assert.Equal(t, []string{}, out.Columns, "nil columns become an empty slice")
	assert.Empty(t, out.Rows)
	assert.Equal(t, int64(7), out.RowsAffected)
}

func TestNormalizeNilValues(t *testing.T) {
	var nilInt *big.Int
	raw := &datasource.RawResult{
		Columns: []string{"a", "b"},
		Rows:    []map[string]any{{"a": nil, "b": nilInt}},
	}

	out := NewResultNormalizer(100).Normalize(raw)

	assert.Nil(t, out.Rows[0]["a"])
	assert.Nil(t, out.Rows[0]["b"])
}

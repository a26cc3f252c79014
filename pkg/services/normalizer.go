package services

import (
	"fmt"
	"math/big"
	"time"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// ResultNormalizer converts adapter-native results into the canonical
// envelope: rows capped, driver scalar types flattened to values that
// serialize cleanly to JSON. Temporal values in particular must become
// strings here; letting a raw time value reach serialization is how
// "not JSON serializable" bugs ship.
type ResultNormalizer struct {
	rowCap int
}

// NewResultNormalizer creates a normalizer with the given row cap.
func NewResultNormalizer(rowCap int) *ResultNormalizer {
	return &ResultNormalizer{rowCap: rowCap}
}

// Normalize produces the canonical result envelope.
func (n *ResultNormalizer) Normalize(raw *datasource.RawResult) *models.ResultEnvelope {
	envelope := &models.ResultEnvelope{
		Columns:      raw.Columns,
		RowsAffected: raw.RowsAffected,
	}
	if envelope.Columns == nil {
		envelope.Columns = []string{}
	}

	rows := raw.Rows
	if n.rowCap > 0 && len(rows) > n.rowCap {
		rows = rows[:n.rowCap]
		envelope.Truncated = true
	}

	envelope.Rows = make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized := make(map[string]any, len(row))
		for key, value := range row {
			normalized[key] = canonicalScalar(value)
		}
		envelope.Rows = append(envelope.Rows, normalized)
	}
	envelope.RowCount = len(envelope.Rows)

	return envelope
}

// canonicalScalar converts one value to its canonical form, recursing
// into maps and slices.
func canonicalScalar(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.String()
	case []byte:
		return string(v)
	case *big.Int:
		if v == nil {
			return nil
		}
		return v.String()
	case *big.Float:
		if v == nil {
			return nil
		}
		return v.String()
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[key] = canonicalScalar(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = canonicalScalar(inner)
		}
		return out
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case fmt.Stringer:
		// Driver-specific wrapper types (UUIDs, decimals, intervals)
		// that print themselves sensibly.
		return v.String()
	default:
		return v
	}
}

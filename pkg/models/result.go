package models

// ResultEnvelope is the normalized form every adapter result is reduced
// to: an ordered sequence of field-named records. Columns preserves the
// field order of the native result; Rows hold canonicalized scalars only
// (no driver-specific types survive normalization).
type ResultEnvelope struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`

	// Truncated is set when the configured row cap was applied.
	Truncated bool `json:"truncated,omitempty"`

	// RowsAffected reports write-statement effects when the backend
	// returned no rows.
	RowsAffected int64 `json:"rows_affected,omitempty"`
}

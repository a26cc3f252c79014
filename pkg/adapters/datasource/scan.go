package datasource

import (
	"database/sql"
	"fmt"
)

// ScanRows drains a database/sql result set into a RawResult. Shared by
// the adapters built on database/sql (SQL Server, DuckDB). Column order
// is preserved; values are left as the driver produced them for the
// result normalizer to canonicalize.
func ScanRows(rows *sql.Rows) (*RawResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	result := &RawResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		result.Rows = append(result.Rows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}

	return result, nil
}

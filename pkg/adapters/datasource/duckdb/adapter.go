// Package duckdb provides the embedded analytical database adapter.
// DuckDB runs in-process against a local database file, so there is no
// network connectivity to test, only file access.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2" // DuckDB driver

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Adapter provides DuckDB connectivity.
type Adapter struct {
	db        *sql.DB
	path      string
	closeOnce sync.Once
}

// NewAdapter opens the DuckDB database file at the given path.
func NewAdapter(path string) (*Adapter, error) {
	if path == "" {
		return nil, fmt.Errorf("database file path is required")
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb database: %w", err)
	}

	// DuckDB is single-writer; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	return &Adapter{db: db, path: path}, nil
}

// NewAdapterWithDB wraps an existing handle. Used by tests.
func NewAdapterWithDB(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// Test verifies the database file can be opened and queried.
func (a *Adapter) Test(ctx context.Context) error {
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// IntrospectSchema discovers tables and columns through DuckDB's
// information_schema views. DuckDB has no FK catalog worth reading, so
// fields carry name, type and PK flag only.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	const tableQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_name
	`

	rows, err := a.db.QueryContext(ctx, tableQuery)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	rows.Close()

	snapshot := &models.SchemaSnapshot{
		Family:    models.FamilyWarehouse,
		Entities:  make([]models.SchemaEntity, 0, len(tables)),
		CreatedAt: time.Now(),
	}

	for _, table := range tables {
		fields, err := a.discoverColumns(ctx, table)
		if err != nil {
			snapshot.Partial = true
			continue
		}
		snapshot.Entities = append(snapshot.Entities, models.SchemaEntity{
			Kind:   models.EntityTable,
			Name:   table,
			Fields: fields,
		})
	}

	return snapshot, nil
}

func (a *Adapter) discoverColumns(ctx context.Context, tableName string) ([]models.FieldDescriptor, error) {
	const query = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := a.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var fields []models.FieldDescriptor
	for rows.Next() {
		var f models.FieldDescriptor
		if err := rows.Scan(&f.Name, &f.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		fields = append(fields, f)
	}

	return fields, rows.Err()
}

// Execute runs a DuckDB SQL statement.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH") ||
		strings.HasPrefix(trimmed, "SHOW") || strings.HasPrefix(trimmed, "DESCRIBE") {
		rows, err := a.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("execute query: %w", err)
		}
		defer rows.Close()

		return datasource.ScanRows(rows)
	}

	res, err := a.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &datasource.RawResult{
		Rows:         make([]map[string]any, 0),
		RowsAffected: affected,
	}, nil
}

// Close releases the handle. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.db != nil {
			err = a.db.Close()
		}
	})
	return err
}

var _ datasource.Connector = (*Adapter)(nil)

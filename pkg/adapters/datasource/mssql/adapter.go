package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Adapter provides SQL Server and Azure Synapse connectivity.
type Adapter struct {
	config    *Config
	db        *sql.DB
	family    models.Family
	closeOnce sync.Once
}

// NewAdapter opens a database handle for the given config. sql.Open
// does not dial, so Test must be called to verify reachability.
func NewAdapter(cfg *Config, family models.Family) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Adapter{
		config: cfg,
		db:     db,
		family: family,
	}, nil
}

// Test verifies the server is reachable with valid credentials.
func (a *Adapter) Test(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	return nil
}

// IntrospectSchema discovers user tables with their columns, primary
// keys and foreign keys through the INFORMATION_SCHEMA views, which
// both SQL Server and Synapse expose.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	tables, err := a.discoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	pks, err := a.discoverPrimaryKeys(ctx)
	if err != nil {
		pks = nil
	}
	fks, err := a.discoverForeignKeys(ctx)
	if err != nil {
		fks = nil
	}

	snapshot := &models.SchemaSnapshot{
		Family:    a.family,
		Entities:  make([]models.SchemaEntity, 0, len(tables)),
		CreatedAt: time.Now(),
	}

	for _, table := range tables {
		fields, err := a.discoverColumns(ctx, table.schema, table.name)
		if err != nil {
			snapshot.Partial = true
			continue
		}

		for i := range fields {
			key := table.name + "." + fields[i].Name
			if pks[key] {
				fields[i].IsPrimaryKey = true
			}
			if ref, ok := fks[key]; ok {
				fields[i].IsForeignKey = true
				fields[i].References = ref
			}
		}

		snapshot.Entities = append(snapshot.Entities, models.SchemaEntity{
			Kind:   models.EntityTable,
			Name:   table.name,
			Fields: fields,
		})
	}

	return snapshot, nil
}

type tableRef struct {
	schema string
	name   string
}

func (a *Adapter) discoverTables(ctx context.Context) ([]tableRef, error) {
	const query = `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

func (a *Adapter) discoverColumns(ctx context.Context, schemaName, tableName string) ([]models.FieldDescriptor, error) {
	const query = `
		SELECT COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION
	`

	rows, err := a.db.QueryContext(ctx, query, schemaName, tableName)
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

func (a *Adapter) discoverPrimaryKeys(ctx context.Context) (map[string]bool, error) {
	const query = `
		SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		pks[table+"."+column] = true
	}

	return pks, rows.Err()
}

func (a *Adapter) discoverForeignKeys(ctx context.Context) (map[string]string, error) {
	const query = `
		SELECT
			tp.name AS table_name,
			cp.name AS column_name,
			tr.name AS ref_table,
			cr.name AS ref_column
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables tp ON fkc.parent_object_id = tp.object_id
		JOIN sys.columns cp ON fkc.parent_object_id = cp.object_id AND fkc.parent_column_id = cp.column_id
		JOIN sys.tables tr ON fkc.referenced_object_id = tr.object_id
		JOIN sys.columns cr ON fkc.referenced_object_id = cr.object_id AND fkc.referenced_column_id = cr.column_id
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string]string)
	for rows.Next() {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks[table+"."+column] = refTable + "." + refColumn
	}

	return fks, rows.Err()
}

// Execute runs a T-SQL statement. Row-returning statements go through
// QueryContext; everything else through ExecContext so rows affected
// can be reported.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	if returnsRows(query) {
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

// returnsRows reports whether a statement produces a result set.
func returnsRows(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(trimmed, "SELECT") ||
		strings.HasPrefix(trimmed, "WITH") ||
		strings.Contains(trimmed, "OUTPUT ")
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

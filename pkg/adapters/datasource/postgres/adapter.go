package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Adapter provides connectivity for PostgreSQL and the backends that
// speak its wire protocol.
type Adapter struct {
	config    *Config
	pool      *pgxpool.Pool
	family    models.Family
	closeOnce sync.Once
}

// NewAdapter opens a connection pool for the given config.
func NewAdapter(ctx context.Context, cfg *Config, family models.Family) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Adapter{
		config: cfg,
		pool:   pool,
		family: family,
	}, nil
}

// Test verifies the database is reachable with valid credentials. It
// checks server connectivity (ping) and database access (simple query).
func (a *Adapter) Test(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	return nil
}

// IntrospectSchema discovers user tables, their columns, primary keys
// and foreign keys. Tables whose columns cannot be read are skipped and
// the snapshot is marked partial.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	tables, err := a.discoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	fks, err := a.discoverForeignKeys(ctx)
	if err != nil {
		// FK metadata is enrichment, not required. Redshift lacks some
		// of the catalog views the query touches.
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
			if ref, ok := fks[table.name+"."+fields[i].Name]; ok {
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
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_schema, table_name
	`

	rows, err := a.pool.Query(ctx, query)
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

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// discoverColumns reads the columns for one table. Primary keys are
// detected through pg_index.indisprimary, which stays correct when the
// PK was created as a unique index by an ORM.
func (a *Adapter) discoverColumns(ctx context.Context, schemaName, tableName string) ([]models.FieldDescriptor, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			COALESCE(pk.is_pk, false) AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary
			  AND t.relname = $2
			  AND n.nspname = $1
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var fields []models.FieldDescriptor
	for rows.Next() {
		var f models.FieldDescriptor
		if err := rows.Scan(&f.Name, &f.DataType, &f.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		fields = append(fields, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return fields, nil
}

// discoverForeignKeys returns a map of "table.column" to the referenced
// "table.column" for every FK constraint in user schemas.
func (a *Adapter) discoverForeignKeys(ctx context.Context) (map[string]string, error) {
	const query = `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS foreign_table,
			ccu.column_name AS foreign_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
	`

	rows, err := a.pool.Query(ctx, query)
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

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// Execute runs a SQL statement and returns the raw result. Statements
// that return no rows (DDL, DML without RETURNING) still report rows
// affected from the command tag.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	result := &datasource.RawResult{Rows: make([]map[string]any, 0)}

	fieldDescs := rows.FieldDescriptions()
	if len(fieldDescs) > 0 {
		result.Columns = make([]string, len(fieldDescs))
		for i, fd := range fieldDescs {
			result.Columns[i] = string(fd.Name)
		}

		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("read row values: %w", err)
			}

			rowMap := make(map[string]any, len(result.Columns))
			for i, col := range result.Columns {
				rowMap[col] = values[i]
			}
			result.Rows = append(result.Rows, rowMap)
		}
	} else {
		// pgx defers execution until rows are consumed, so iterate even
		// when no rows are expected.
		for rows.Next() {
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	result.RowsAffected = rows.CommandTag().RowsAffected()

	return result, nil
}

// Close releases the pool. Safe to call more than once.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		if a.pool != nil {
			a.pool.Close()
		}
	})
	return nil
}

// Ensure Adapter implements Connector at compile time.
var _ datasource.Connector = (*Adapter)(nil)

package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Introspector builds a Model from live PostgreSQL catalog metadata. It uses
// sqlx.StructScan over information_schema/pg_catalog exactly the way the
// teacher's SchemaInspector batches its metadata queries, trading the
// teacher's manual rows.Scan column lists for struct tags.
type Introspector struct {
	db *sqlx.DB
}

// NewIntrospector wraps an existing pgxpool.Pool for introspection queries.
// It opens a second, stdlib-backed *sql.DB over the same DSN-less pool
// connection config so sqlx can drive StructScan; the pool itself keeps
// handling all data-path connections.
func NewIntrospector(pool *pgxpool.Pool) *Introspector {
	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	return &Introspector{db: db}
}

type schemaRow struct {
	SchemaName string `db:"schema_name"`
}

type tableRow struct {
	TableSchema string `db:"table_schema"`
	TableName  string `db:"table_name"`
}

type columnRow struct {
	TableSchema string `db:"table_schema"`
	TableName   string `db:"table_name"`
	ColumnName  string `db:"column_name"`
	DataType    string `db:"data_type"`
	IsNullable  bool   `db:"is_nullable"`
	Position    int    `db:"position"`
}

type uniqueKeyRow struct {
	TableSchema string `db:"table_schema"`
	TableName   string `db:"table_name"`
	ConstraintName string `db:"constraint_name"`
	ColumnName  string `db:"column_name"`
	Ordinal     int    `db:"ordinal"`
}

type foreignKeyRow struct {
	TableSchema       string `db:"table_schema"`
	TableName         string `db:"table_name"`
	ConstraintName    string `db:"constraint_name"`
	ColumnName        string `db:"column_name"`
	Ordinal           int    `db:"ordinal"`
	TargetSchema      string `db:"target_schema"`
	TargetTable       string `db:"target_table"`
	TargetColumn      string `db:"target_column"`
	OnDelete          string `db:"on_delete"`
	OnUpdate          string `db:"on_update"`
}

const introspectSchemaQuery = `
SELECT nspname AS schema_name
FROM pg_namespace
WHERE nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast', '_ermrest_meta')
  AND nspname NOT LIKE 'pg_temp_%'
ORDER BY nspname`

const introspectTableQuery = `
SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_schema = ANY($1)
  AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_schema, table_name`

const introspectColumnQuery = `
SELECT
  table_schema,
  table_name,
  column_name,
  CASE WHEN data_type = 'USER-DEFINED' THEN udt_name ELSE data_type END AS data_type,
  (is_nullable = 'YES') AS is_nullable,
  ordinal_position AS position
FROM information_schema.columns
WHERE table_schema = ANY($1)
ORDER BY table_schema, table_name, ordinal_position`

const introspectUniqueKeyQuery = `
SELECT
  tc.table_schema,
  tc.table_name,
  tc.constraint_name,
  kcu.column_name,
  kcu.ordinal_position AS ordinal
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.constraint_schema = tc.constraint_schema
WHERE tc.table_schema = ANY($1)
  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
ORDER BY tc.table_schema, tc.table_name, tc.constraint_name, kcu.ordinal_position`

const introspectForeignKeyQuery = `
SELECT
  tc.table_schema,
  tc.table_name,
  tc.constraint_name,
  kcu.column_name,
  kcu.ordinal_position AS ordinal,
  ccu.table_schema AS target_schema,
  ccu.table_name AS target_table,
  ccu.column_name AS target_column,
  rc.update_rule AS on_update,
  rc.delete_rule AS on_delete
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.constraint_schema = tc.constraint_schema
JOIN information_schema.referential_constraints rc
  ON rc.constraint_name = tc.constraint_name
 AND rc.constraint_schema = tc.constraint_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = rc.unique_constraint_name
 AND ccu.constraint_schema = rc.unique_constraint_schema
 AND ccu.ordinal_position = kcu.ordinal_position
WHERE tc.table_schema = ANY($1)
  AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY tc.table_schema, tc.table_name, tc.constraint_name, kcu.ordinal_position`

// Load reads the full catalog for catalogID at the given data-version token
// and returns an immutable Model.
func (in *Introspector) Load(ctx context.Context, catalogID, version int64) (*Model, error) {
	var schemaRows []schemaRow
	if err := in.db.SelectContext(ctx, &schemaRows, introspectSchemaQuery); err != nil {
		return nil, fmt.Errorf("introspect schemas: %w", err)
	}
	schemas := make([]string, len(schemaRows))
	for i, s := range schemaRows {
		schemas[i] = s.SchemaName
	}
	if len(schemas) == 0 {
		return NewBuilder(catalogID, version).Build(), nil
	}

	b := NewBuilder(catalogID, version)

	var tableRows []tableRow
	if err := in.db.SelectContext(ctx, &tableRows, introspectTableQuery, schemas); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	var columnRows []columnRow
	if err := in.db.SelectContext(ctx, &columnRows, introspectColumnQuery, schemas); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	colsByTable := map[string][]columnRow{}
	for _, c := range columnRows {
		key := c.TableSchema + "." + c.TableName
		colsByTable[key] = append(colsByTable[key], c)
	}

	for _, t := range tableRows {
		key := t.TableSchema + "." + t.TableName
		cols := colsByTable[key]
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.ColumnName
		}
		b.Table(t.TableSchema, t.TableName, names...)
		for _, c := range cols {
			b.ColumnType(t.TableSchema, t.TableName, c.ColumnName, c.DataType, c.IsNullable)
		}
	}

	var ukRows []uniqueKeyRow
	if err := in.db.SelectContext(ctx, &ukRows, introspectUniqueKeyQuery, schemas); err != nil {
		return nil, fmt.Errorf("introspect unique keys: %w", err)
	}
	ukGroups := map[string][]uniqueKeyRow{}
	var ukOrder []string
	for _, r := range ukRows {
		key := r.TableSchema + "." + r.TableName + "." + r.ConstraintName
		if _, seen := ukGroups[key]; !seen {
			ukOrder = append(ukOrder, key)
		}
		ukGroups[key] = append(ukGroups[key], r)
	}
	for _, key := range ukOrder {
		rows := ukGroups[key]
		cols := make([]string, len(rows))
		for i, r := range rows {
			cols[i] = r.ColumnName
		}
		b.UniqueKey(rows[0].TableSchema, rows[0].TableName, cols...)
	}

	var fkRows []foreignKeyRow
	if err := in.db.SelectContext(ctx, &fkRows, introspectForeignKeyQuery, schemas); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}
	fkGroups := map[string][]foreignKeyRow{}
	var fkOrder []string
	for _, r := range fkRows {
		key := r.TableSchema + "." + r.TableName + "." + r.ConstraintName
		if _, seen := fkGroups[key]; !seen {
			fkOrder = append(fkOrder, key)
		}
		fkGroups[key] = append(fkGroups[key], r)
	}
	for _, key := range fkOrder {
		rows := fkGroups[key]
		cols := make([]string, len(rows))
		targetCols := make([]string, len(rows))
		for i, r := range rows {
			cols[i] = r.ColumnName
			targetCols[i] = r.TargetColumn
		}
		b.ForeignKey(rows[0].TableSchema, rows[0].TableName, cols, rows[0].TargetSchema, rows[0].TargetTable, targetCols)
	}

	return b.Build(), nil
}

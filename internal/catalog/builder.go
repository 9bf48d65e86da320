package catalog

import "sort"

// Builder assembles a Model incrementally. It exists so introspection code
// (introspect.go) and test fixtures can share one path for constructing a
// consistent, back-indexed Model rather than hand-wiring pointers.
type Builder struct {
	catalogID int64
	version   int64
	schemas   map[string]*schemaBuilder
	order     []string
}

type schemaBuilder struct {
	name   string
	tables map[string]*tableBuilder
	order  []string
}

type tableBuilder struct {
	name    string
	columns []*Column
	byName  map[string]*Column
	ukeys   [][]string // column-name tuples
	fkeys   []fkSpec
}

type fkSpec struct {
	columns      []string
	targetSchema string
	targetTable  string
	targetCols   []string
	onDelete     string
	onUpdate     string
}

// NewBuilder starts a Model under construction for the given catalog id and
// data-version snapshot token.
func NewBuilder(catalogID, version int64) *Builder {
	return &Builder{catalogID: catalogID, version: version, schemas: map[string]*schemaBuilder{}}
}

// Schema registers (or returns the already-registered) schema name.
func (b *Builder) Schema(name string) *Builder {
	if _, ok := b.schemas[name]; !ok {
		b.schemas[name] = &schemaBuilder{name: name, tables: map[string]*tableBuilder{}}
		b.order = append(b.order, name)
	}
	return b
}

// Table registers a table within schema with the given columns, in
// declaration order. Column types default to "text"/nullable=true unless
// refined by ColumnType.
func (b *Builder) Table(schema, table string, columns ...string) *Builder {
	b.Schema(schema)
	sb := b.schemas[schema]
	if _, ok := sb.tables[table]; ok {
		return b
	}
	tb := &tableBuilder{name: table, byName: map[string]*Column{}}
	for i, cn := range columns {
		c := &Column{Name: cn, Type: "text", Nullable: true, Position: i}
		tb.columns = append(tb.columns, c)
		tb.byName[cn] = c
	}
	sb.tables[table] = tb
	sb.order = append(sb.order, table)
	return b
}

// ColumnType overrides the inferred type/nullability of an already-declared column.
func (b *Builder) ColumnType(schema, table, column, sqlType string, nullable bool) *Builder {
	tb := b.schemas[schema].tables[table]
	c := tb.byName[column]
	c.Type = sqlType
	c.Nullable = nullable
	return b
}

// UniqueKey declares that columns (within schema:table) form a unique key.
func (b *Builder) UniqueKey(schema, table string, columns ...string) *Builder {
	tb := b.schemas[schema].tables[table]
	tb.ukeys = append(tb.ukeys, columns)
	return b
}

// ForeignKey declares a foreign key from schema:table(columns) to
// targetSchema:targetTable(targetColumns).
func (b *Builder) ForeignKey(schema, table string, columns []string, targetSchema, targetTable string, targetColumns []string) *Builder {
	tb := b.schemas[schema].tables[table]
	tb.fkeys = append(tb.fkeys, fkSpec{
		columns:      columns,
		targetSchema: targetSchema,
		targetTable:  targetTable,
		targetCols:   targetColumns,
		onDelete:     "NO ACTION",
		onUpdate:     "NO ACTION",
	})
	return b
}

// Build finalizes the Model: assigns arena ids, wires every back-index, and
// adds the virtual freetext column to each table.
func (b *Builder) Build() *Model {
	m := &Model{CatalogID: b.catalogID, Version: b.version, byName: map[string]*Schema{}}

	// Pass 1: create Schema/Table/Column skeletons and the arena.
	for _, sname := range b.order {
		sb := b.schemas[sname]
		schema := &Schema{Model: m, Name: sname, tables: map[string]*Table{}}
		m.byName[sname] = schema
		m.schemas = append(m.schemas, schema)

		sort.Strings(sb.order) // deterministic arena ids independent of declaration order
		for _, tname := range sb.order {
			tb := sb.tables[tname]
			t := &Table{
				ID:               len(m.tables),
				Schema:           schema,
				Name:             tname,
				columns:          map[string]*Column{},
				outgoingByTarget: map[*Table][]*ForeignKey{},
			}
			for _, c := range tb.columns {
				cc := *c
				cc.Table = t
				t.columns[cc.Name] = &cc
				t.columnOrder = append(t.columnOrder, &cc)
			}
			t.freetext = &Column{Table: t, Name: "*", Freetext: true}
			schema.tables[tname] = t
			m.tables = append(m.tables, t)
		}
	}

	// Pass 2: unique keys (need all tables to exist first in case of
	// forward-referencing foreign keys within the same transaction).
	for sname, sb := range b.schemas {
		schema := m.byName[sname]
		for tname, tb := range sb.tables {
			t := schema.tables[tname]
			for _, cols := range tb.ukeys {
				uk := &UniqueKey{Table: t, TableReferences: map[*Table][]*ForeignKey{}}
				for _, cn := range cols {
					uk.Columns = append(uk.Columns, t.columns[cn])
				}
				t.UniqueKeys = append(t.UniqueKeys, uk)
			}
		}
	}

	// Pass 3: foreign keys, wiring both back-indices.
	for sname, sb := range b.schemas {
		schema := m.byName[sname]
		for tname, tb := range sb.tables {
			t := schema.tables[tname]
			for _, spec := range tb.fkeys {
				targetSchema := m.byName[spec.targetSchema]
				targetTable := targetSchema.tables[spec.targetTable]
				uk := findUniqueKey(targetTable, spec.targetCols)
				if uk == nil {
					// No declared unique key matches; synthesize one so the
					// model stays usable (grounded on ermrest's tolerant
					// introspection).
					uk = &UniqueKey{Table: targetTable, TableReferences: map[*Table][]*ForeignKey{}}
					for _, cn := range spec.targetCols {
						uk.Columns = append(uk.Columns, targetTable.columns[cn])
					}
					targetTable.UniqueKeys = append(targetTable.UniqueKeys, uk)
				}
				fk := &ForeignKey{Table: t, Unique: uk, OnDelete: spec.onDelete, OnUpdate: spec.onUpdate}
				for _, cn := range spec.columns {
					fk.Columns = append(fk.Columns, t.columns[cn])
				}
				t.ForeignKeys = append(t.ForeignKeys, fk)
				t.outgoingByTarget[targetTable] = append(t.outgoingByTarget[targetTable], fk)
				uk.TableReferences[t] = append(uk.TableReferences[t], fk)
			}
		}
	}

	return m
}

func findUniqueKey(t *Table, columns []string) *UniqueKey {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}
next:
	for _, uk := range t.UniqueKeys {
		if len(uk.Columns) != len(columns) {
			continue
		}
		for _, c := range uk.Columns {
			if !want[c.Name] {
				continue next
			}
		}
		return uk
	}
	return nil
}

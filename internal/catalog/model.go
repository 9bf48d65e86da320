// Package catalog implements C1, the in-memory catalog model: schemas,
// tables, columns, unique keys, and foreign keys, together with the
// back-indices and link-inference rules the rest of the data-path engine
// relies on. A Model is built once per catalog version and is immutable and
// safe for concurrent read access for the lifetime of every request that
// shares it.
package catalog

import (
	"fmt"
	"sort"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
)

// Direction names which side of a foreign key the join was inferred from.
type Direction string

const (
	// LeftToRight means the left table carries the foreign key pointing at
	// a unique key of the right table.
	LeftToRight Direction = "left-to-right"
	// RightToLeft means the right table carries the foreign key pointing at
	// a unique key of the left table.
	RightToLeft Direction = "right-to-left"
)

// Column is a single table column. Position is the column's 0-based
// declared ordinal, used to make wildcard expansion deterministic.
type Column struct {
	Table    *Table
	Name     string
	Type     string
	Nullable bool
	Position int
	// Freetext marks the virtual "*" column representing row-level
	// full-text search; it has no backing physical column.
	Freetext bool
}

// UniqueKey is a set of columns (often just the primary key) that
// foreign keys elsewhere in the model may reference.
type UniqueKey struct {
	Table   *Table
	Columns []*Column

	// TableReferences maps a referencing Table to the ForeignKeys on that
	// table which target this UniqueKey. Built once at load time; never
	// mutated afterward.
	TableReferences map[*Table][]*ForeignKey
}

func (u *UniqueKey) columnNames() []string {
	names := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKey is a reference from one or more local columns on Table to a
// UniqueKey (possibly on another table, possibly a self-reference).
type ForeignKey struct {
	Table   *Table
	Columns []*Column // local columns, in FK column order
	Unique  *UniqueKey
	OnDelete string
	OnUpdate string
}

// TargetTable is the table the foreign key points at.
func (fk *ForeignKey) TargetTable() *Table { return fk.Unique.Table }

// Table holds a table's columns, keys, and the back-indices needed for
// link inference.
type Table struct {
	ID     int // stable arena id, assigned once at model build time
	Schema *Schema
	Name   string

	columns     map[string]*Column
	columnOrder []*Column

	UniqueKeys  []*UniqueKey
	ForeignKeys []*ForeignKey

	// outgoingByTarget maps a target Table to the ForeignKeys on this table
	// that reference some UniqueKey of that target — the per-ForeignKey
	// back-index spec.md §3 calls "for each ForeignKey, a mapping from
	// target Table to outgoing references".
	outgoingByTarget map[*Table][]*ForeignKey

	freetext *Column
}

// Column looks up a column by name; ok is false if no such column exists.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.columns[name]
	return c, ok
}

// ColumnsInOrder returns the table's columns in declared order — the
// ordering spec.md §8 requires wildcard expansion to preserve.
func (t *Table) ColumnsInOrder() []*Column {
	out := make([]*Column, len(t.columnOrder))
	copy(out, t.columnOrder)
	return out
}

// FreetextColumn returns the virtual column representing row-level
// full-text search (glossary: "Freetext column").
func (t *Table) FreetextColumn() *Column { return t.freetext }

// QualifiedName renders "schema:table", the canonical 2-part form.
func (t *Table) QualifiedName() string {
	return fmt.Sprintf("%s:%s", t.Schema.Name, t.Name)
}

// Schema is an ordered collection of tables sharing a namespace.
type Schema struct {
	Model  *Model
	Name   string
	tables map[string]*Table
}

// Table looks up a table within this schema only.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns the schema's tables sorted by name for deterministic iteration.
func (s *Schema) Tables() []*Table {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Table, len(names))
	for i, n := range names {
		out[i] = s.tables[n]
	}
	return out
}

// Model is the root of the catalog: a mapping from schema name to Schema.
// Tables, keys and foreign keys refer to one another through plain pointers
// (ForeignKey.Table, ForeignKey.Unique), so the metadata graph is cyclic.
type Model struct {
	CatalogID int64
	// Version is the opaque data-version token this model snapshot was
	// built at; it seeds ETag computation until a later request observes a
	// newer version and triggers a rebuild (see internal/session).
	Version int64

	schemas []*Schema
	byName  map[string]*Schema
	tables  []*Table // arena, indexed by Table.ID
}

// Schemas returns every schema in the model, in load order.
func (m *Model) Schemas() []*Schema { return m.schemas }

// Schema looks up a schema by name.
func (m *Model) Schema(name string) (*Schema, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// TableByID resolves a table by its stable arena id.
func (m *Model) TableByID(id int) (*Table, bool) {
	if id < 0 || id >= len(m.tables) {
		return nil, false
	}
	return m.tables[id], true
}

// LookupTable resolves a table name to a Table. If schema is non-empty the
// lookup is exact; otherwise the table name must be unambiguous across every
// schema in the model (spec.md §4.1).
func (m *Model) LookupTable(schema, name string) (*Table, error) {
	if schema != "" {
		s, ok := m.byName[schema]
		if !ok {
			return nil, apierr.New(apierr.NotFound, "no such schema %q", schema)
		}
		t, ok := s.tables[name]
		if !ok {
			return nil, apierr.New(apierr.NotFound, "no such table %s:%s", schema, name)
		}
		return t, nil
	}

	var found []*Table
	for _, s := range m.schemas {
		if t, ok := s.tables[name]; ok {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, apierr.New(apierr.NotFound, "no such table %q", name)
	case 1:
		return found[0], nil
	default:
		return nil, apierr.New(apierr.ConflictModel, "table name %q is ambiguous across schemas", name)
	}
}

// DefaultLink infers the unique foreign-key relation between left and
// right per spec.md §4.1: the union of (i) ForeignKeys on left targeting a
// UniqueKey of right (LeftToRight), and (ii) incoming ForeignKeys on left's
// UniqueKeys from right (RightToLeft). Exactly one candidate must exist;
// left == right is always an error (no inferred self-links, see §4.3 "Self
// join" edge case — explicit links are the only way to self-join).
func (m *Model) DefaultLink(left, right *Table) (*ForeignKey, Direction, error) {
	if left == right {
		return nil, "", apierr.New(apierr.ConflictModel,
			"no inferred self-link for table %s; an explicit link is required", left.QualifiedName())
	}

	type candidate struct {
		fk  *ForeignKey
		dir Direction
	}
	var candidates []candidate

	for _, fk := range left.outgoingByTarget[right] {
		candidates = append(candidates, candidate{fk, LeftToRight})
	}
	for _, uk := range left.UniqueKeys {
		for _, fk := range uk.TableReferences[right] {
			candidates = append(candidates, candidate{fk, RightToLeft})
		}
	}

	switch len(candidates) {
	case 0:
		return nil, "", apierr.New(apierr.ConflictModel,
			"No link found between tables %s and %s", left.QualifiedName(), right.QualifiedName())
	case 1:
		return candidates[0].fk, candidates[0].dir, nil
	default:
		return nil, "", apierr.New(apierr.ConflictModel,
			"Ambiguous links found between tables %s and %s", left.QualifiedName(), right.QualifiedName())
	}
}

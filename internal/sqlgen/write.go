package sqlgen

import (
	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/epath"
)

// Write is a rendered INSERT/UPSERT or DELETE ready for execution. The
// INSERT/UPSERT form returns the inserted/updated rows via RETURNING so the
// handler can echo them back; the DELETE form returns no rows.
type Write struct {
	SQL  string
	Args []interface{}
}

// RenderInsert builds an INSERT ... ON CONFLICT statement for table.
//
// allowExisting selects PUT semantics (insert-or-update: ON CONFLICT DO
// UPDATE on the table's primary unique key) versus POST semantics
// (insert-only: ON CONFLICT DO NOTHING, post_method in spec.md §4.5).
// defaultCols names columns the caller omits from rows and wants the
// database to supply (sequence/default-valued columns), matching the
// `?defaults=` queryopt (spec.md §6.1).
func RenderInsert(table *catalog.Table, rows []Row, allowExisting bool, defaultCols map[string]struct{}) (*Write, error) {
	if len(rows) == 0 {
		return nil, apierr.New(apierr.BadData, "no rows to write")
	}

	var cols []string
	seen := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			if _, isDefault := defaultCols[k]; isDefault {
				continue
			}
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	for _, c := range cols {
		if _, ok := table.Column(c); !ok {
			return nil, apierr.New(apierr.BadData, "unknown column %q for table %s", c, table.QualifiedName())
		}
	}
	if len(cols) == 0 {
		return nil, apierr.New(apierr.BadData, "no writable columns in input row set")
	}

	b := &builder{}
	b.write("INSERT INTO " + quoteIdent(table.Schema.Name) + "." + quoteIdent(table.Name) + " (")
	for i, c := range cols {
		if i > 0 {
			b.write(", ")
		}
		b.write(quoteIdent(c))
	}
	b.write(") VALUES ")

	for r, row := range rows {
		if r > 0 {
			b.write(", ")
		}
		b.write("(")
		for i, c := range cols {
			if i > 0 {
				b.write(", ")
			}
			b.write(b.param(row[c]))
		}
		b.write(")")
	}

	pk := primaryUniqueKey(table)
	if pk == nil {
		return nil, apierr.New(apierr.ConflictModel, "table %s has no unique key to drive ON CONFLICT", table.QualifiedName())
	}

	b.write(" ON CONFLICT (")
	for i, c := range pk.Columns {
		if i > 0 {
			b.write(", ")
		}
		b.write(quoteIdent(c.Name))
	}
	b.write(") ")

	if allowExisting {
		updateCols := nonKeyColumns(cols, pk)
		if len(updateCols) == 0 {
			b.write("DO NOTHING")
		} else {
			b.write("DO UPDATE SET ")
			for i, c := range updateCols {
				if i > 0 {
					b.write(", ")
				}
				b.write(quoteIdent(c) + " = EXCLUDED." + quoteIdent(c))
			}
		}
	} else {
		b.write("DO NOTHING")
	}

	b.write(" RETURNING ")
	for i, col := range table.ColumnsInOrder() {
		if i > 0 {
			b.write(", ")
		}
		b.write(quoteIdent(col.Name))
	}

	return &Write{SQL: b.sb.String(), Args: b.args}, nil
}

// RenderDelete builds a DELETE FROM ... statement over path's base table,
// scoped by every filter attached anywhere in the path. A multi-element
// path's other tables are joined in with DELETE ... USING, their link
// columns equated in the WHERE clause, so filters on any element narrow
// which base-table rows are deleted.
func RenderDelete(path *epath.EntityPath) (*Write, error) {
	elements := path.Elements()
	base := elements[0]

	b := &builder{}
	b.write("DELETE FROM " + quoteIdent(base.Table.Schema.Name) + "." + quoteIdent(base.Table.Name) + " AS " + tableRef(0))

	if len(elements) > 1 {
		b.write(" USING ")
		for i, elem := range elements[1:] {
			if i > 0 {
				b.write(", ")
			}
			b.write(quoteIdent(elem.Table.Schema.Name) + "." + quoteIdent(elem.Table.Name) + " AS " + tableRef(elem.Position))
		}
	}

	var clauses []string
	for _, elem := range elements[1:] {
		fkPos, ukPos := elem.SourcePosition, elem.Position
		if elem.Direction == catalog.RightToLeft {
			fkPos, ukPos = elem.Position, elem.SourcePosition
		}
		for i, fkCol := range elem.Link.Columns {
			ukCol := elem.Link.Unique.Columns[i]
			clauses = append(clauses, qualifiedCol(fkPos, fkCol)+" = "+qualifiedCol(ukPos, ukCol))
		}
	}

	where := collectFilters(path)
	hasWhere := where != nil || len(clauses) > 0
	if hasWhere {
		b.write(" WHERE ")
		first := true
		for _, c := range clauses {
			if !first {
				b.write(" AND ")
			}
			b.write(c)
			first = false
		}
		if where != nil {
			if !first {
				b.write(" AND ")
			}
			if err := renderFilterExpr(b, where); err != nil {
				return nil, err
			}
		}
	}

	return &Write{SQL: b.sb.String(), Args: b.args}, nil
}

func primaryUniqueKey(t *catalog.Table) *catalog.UniqueKey {
	if len(t.UniqueKeys) == 0 {
		return nil
	}
	shortest := t.UniqueKeys[0]
	for _, uk := range t.UniqueKeys[1:] {
		if len(uk.Columns) < len(shortest.Columns) {
			shortest = uk
		}
	}
	return shortest
}

func nonKeyColumns(cols []string, pk *catalog.UniqueKey) []string {
	keyed := map[string]bool{}
	for _, c := range pk.Columns {
		keyed[c.Name] = true
	}
	var out []string
	for _, c := range cols {
		if !keyed[c] {
			out = append(out, c)
		}
	}
	return out
}

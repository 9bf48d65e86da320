// Package sqlgen implements C5: rendering a frozen entity path and its
// resolved projection into parameterized SQL, plus the executor (Drain)
// that runs it inside the caller's transaction and buffers every result
// row in memory before that transaction commits.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/epath"
	"github.com/ermrest-eu/ermrestd/internal/projection"
)

// quoteIdent double-quotes a PostgreSQL identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableRef(pos int) string { return fmt.Sprintf("t%d", pos) }

func qualifiedCol(pos int, col *catalog.Column) string {
	return tableRef(pos) + "." + quoteIdent(col.Name)
}

// builder accumulates a SQL statement and its positional parameters.
type builder struct {
	sb   strings.Builder
	args []interface{}
}

func (b *builder) param(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) write(s string) { b.sb.WriteString(s) }

// Select is a rendered read query ready for execution.
type Select struct {
	SQL  string
	Args []interface{}
}

// RenderSelect renders path's FROM/JOIN chain, every element's attached
// filters, the given output projection (or groupKeys+aggregates for an
// AttributeGroup), sort, and pagination into a single SELECT.
//
// groupKeys is nil for a plain Entity/Attribute read; when non-nil the
// query adds GROUP BY groupKeys and items may mix plain and aggregate
// projections (spec.md §4.4).
func RenderSelect(path *epath.EntityPath, items []projection.Item, groupKeys []projection.Item, limit int) (*Select, error) {
	b := &builder{}

	b.write("SELECT ")
	if err := renderProjectionList(b, groupKeys, items); err != nil {
		return nil, err
	}

	b.write(" FROM ")
	if err := renderFrom(b, path); err != nil {
		return nil, err
	}

	if where := collectFilters(path); where != nil {
		b.write(" WHERE ")
		if err := renderFilterExpr(b, where); err != nil {
			return nil, err
		}
	}

	if len(groupKeys) > 0 {
		b.write(" GROUP BY ")
		for i, g := range groupKeys {
			if i > 0 {
				b.write(", ")
			}
			b.write(qualifiedCol(g.BoundPos, g.Column))
		}
	}

	sortKeys := path.Sort()
	before, after := path.Page()
	if len(sortKeys) > 0 {
		if err := renderOrderBy(b, sortKeys); err != nil {
			return nil, err
		}
		if len(after) > 0 {
			b.write(" AND ")
			if err := renderPageTuple(b, sortKeys, after, false); err != nil {
				return nil, err
			}
		} else if len(before) > 0 {
			b.write(" AND ")
			if err := renderPageTuple(b, sortKeys, before, true); err != nil {
				return nil, err
			}
		}
	}

	if limit >= 0 {
		b.write(fmt.Sprintf(" LIMIT %s", b.param(limit)))
	}

	return &Select{SQL: b.sb.String(), Args: b.args}, nil
}

func renderProjectionList(b *builder, groupKeys []projection.Item, items []projection.Item) error {
	all := append(append([]projection.Item{}, groupKeys...), items...)
	if len(all) == 0 {
		return apierr.New(apierr.BadSyntax, "projection list must not be empty")
	}
	for i, item := range all {
		if i > 0 {
			b.write(", ")
		}
		expr, err := renderProjectionExpr(item)
		if err != nil {
			return err
		}
		b.write(expr + " AS " + quoteIdent(item.OutputName))
	}
	return nil
}

func renderProjectionExpr(item projection.Item) (string, error) {
	col := qualifiedCol(item.BoundPos, item.Column)
	switch item.AggFunc {
	case projection.NoAgg:
		return col, nil
	case projection.Count:
		if item.Column.Freetext {
			return "COUNT(*)", nil
		}
		return "COUNT(" + col + ")", nil
	case projection.CountD:
		return "COUNT(DISTINCT " + col + ")", nil
	case projection.Min:
		return "MIN(" + col + ")", nil
	case projection.Max:
		return "MAX(" + col + ")", nil
	case projection.Sum:
		return "SUM(" + col + ")", nil
	case projection.Avg:
		return "AVG(" + col + ")", nil
	case projection.Array:
		return "ARRAY_AGG(" + col + ")", nil
	case projection.ArrayD:
		return "ARRAY_AGG(DISTINCT " + col + ")", nil
	default:
		return "", apierr.New(apierr.BadSyntax, "unknown aggregate function %q", item.AggFunc)
	}
}

func renderFrom(b *builder, path *epath.EntityPath) error {
	elements := path.Elements()
	if len(elements) == 0 {
		return apierr.New(apierr.BadSyntax, "entity path has no base element")
	}

	base := elements[0]
	b.write(quoteIdent(base.Table.Schema.Name) + "." + quoteIdent(base.Table.Name) + " AS " + tableRef(0))

	for _, elem := range elements[1:] {
		fkPos, ukPos := elem.SourcePosition, elem.Position
		if elem.Direction == catalog.RightToLeft {
			fkPos, ukPos = elem.Position, elem.SourcePosition
		}

		b.write(" JOIN " + quoteIdent(elem.Table.Schema.Name) + "." + quoteIdent(elem.Table.Name) + " AS " + tableRef(elem.Position) + " ON ")
		for i, fkCol := range elem.Link.Columns {
			if i > 0 {
				b.write(" AND ")
			}
			ukCol := elem.Link.Unique.Columns[i]
			b.write(qualifiedCol(fkPos, fkCol) + " = " + qualifiedCol(ukPos, ukCol))
		}
	}
	return nil
}

// collectFilters conjoins every element's attached filters into one tree,
// in path order, so attachment order never changes the resulting predicate
// modulo AND commutativity (spec.md §8's idempotent composition property).
func collectFilters(path *epath.EntityPath) epath.FilterExpr {
	var acc epath.FilterExpr
	for _, elem := range path.Elements() {
		for _, f := range elem.Filters {
			if acc == nil {
				acc = f
			} else {
				acc = epath.FilterAnd{Left: acc, Right: f}
			}
		}
	}
	return acc
}

func renderFilterExpr(b *builder, expr epath.FilterExpr) error {
	switch e := expr.(type) {
	case epath.FilterLeaf:
		return renderPredicate(b, e.Predicate)
	case epath.FilterAnd:
		b.write("(")
		if err := renderFilterExpr(b, e.Left); err != nil {
			return err
		}
		b.write(" AND ")
		if err := renderFilterExpr(b, e.Right); err != nil {
			return err
		}
		b.write(")")
		return nil
	case epath.FilterOr:
		b.write("(")
		if err := renderFilterExpr(b, e.Left); err != nil {
			return err
		}
		b.write(" OR ")
		if err := renderFilterExpr(b, e.Right); err != nil {
			return err
		}
		b.write(")")
		return nil
	default:
		return apierr.New(apierr.BadSyntax, "unknown filter expression node %T", expr)
	}
}

func renderPredicate(b *builder, p epath.Predicate) error {
	col := qualifiedCol(p.BoundPos, p.Column)
	if p.Negate {
		b.write("NOT (")
	}
	switch p.Op {
	case epath.OpEqual:
		b.write(col + " = " + b.param(p.Value))
	case epath.OpGreater:
		b.write(col + " > " + b.param(p.Value))
	case epath.OpGreaterOrEq:
		b.write(col + " >= " + b.param(p.Value))
	case epath.OpLess:
		b.write(col + " < " + b.param(p.Value))
	case epath.OpLessOrEq:
		b.write(col + " <= " + b.param(p.Value))
	case epath.OpRegexp:
		b.write(col + " ~ " + b.param(p.Value))
	case epath.OpCIRegexp:
		b.write(col + " ~* " + b.param(p.Value))
	case epath.OpTextSearch:
		b.write("to_tsvector(" + col + ") @@ plainto_tsquery(" + b.param(p.Value) + ")")
	default:
		return apierr.New(apierr.BadSyntax, "unknown filter operator %q", p.Op)
	}
	if p.Negate {
		b.write(")")
	}
	return nil
}

func renderOrderBy(b *builder, keys []epath.SortKey) error {
	b.write(" ORDER BY ")
	for i, k := range keys {
		if i > 0 {
			b.write(", ")
		}
		b.write(qualifiedCol(k.BoundPos, k.Column))
		if k.Descending {
			b.write(" DESC")
		} else {
			b.write(" ASC")
		}
	}
	return nil
}

// renderPageTuple renders the strict lexicographic inequality over the sort
// key as an explicit OR-chain, (c1 op v1) OR (c1 = v1 AND c2 op v2) OR ...,
// never as a row literal. Each column's op follows its own sort direction
// (> ascending, < descending) and is reversed for a "before" page.
func renderPageTuple(b *builder, keys []epath.SortKey, values []epath.PageValue, before bool) error {
	b.write("(")
	for i := range keys {
		if i > 0 {
			b.write(" OR ")
		}
		b.write("(")
		for j := 0; j < i; j++ {
			if j > 0 {
				b.write(" AND ")
			}
			b.write(qualifiedCol(keys[j].BoundPos, keys[j].Column) + " = " + b.param(values[j].Value))
		}
		if i > 0 {
			b.write(" AND ")
		}
		op := ">"
		if keys[i].Descending {
			op = "<"
		}
		if before {
			op = flip(op)
		}
		b.write(qualifiedCol(keys[i].BoundPos, keys[i].Column) + " " + op + " " + b.param(values[i].Value))
		b.write(")")
	}
	b.write(")")
	return nil
}

func flip(op string) string {
	if op == ">" {
		return "<"
	}
	return ">"
}

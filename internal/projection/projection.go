// Package projection implements C4: binding raw projection/grouping items
// from the URL grammar to resolved catalog columns, expanding the `*`
// wildcard, and tagging aggregate-function projections.
package projection

import (
	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/epath"
	"github.com/ermrest-eu/ermrestd/internal/ermname"
)

// AggFunc tags the aggregation function wrapping a projection item.
type AggFunc string

const (
	// NoAgg marks a plain (non-aggregate) projection item.
	NoAgg     AggFunc = ""
	Count     AggFunc = "count"
	Min       AggFunc = "min"
	Max       AggFunc = "max"
	Sum       AggFunc = "sum"
	Avg       AggFunc = "avg"
	Array     AggFunc = "array"
	ArrayD    AggFunc = "array_d"
	CountD    AggFunc = "cnt_d"
)

func validAggFunc(f AggFunc) bool {
	switch f {
	case NoAgg, Count, Min, Max, Sum, Avg, Array, ArrayD, CountD:
		return true
	}
	return false
}

// BaseKind names where a resolved projection item is bound, mirroring
// ermname.ColumnRef's Bound* flags (spec.md §3's projection-item "base").
type BaseKind int

const (
	// BasePath means the column belongs to the path's current context table.
	BasePath BaseKind = iota
	// BaseAlias means the column is qualified by a bound path alias.
	BaseAlias
	// BaseModel means the column was resolved as a fully-qualified model reference.
	BaseModel
)

// InputItem is one raw projection entry as the URL grammar parses it,
// before resolution.
type InputItem struct {
	Name       ermname.Name
	OutputName string // explicit ":=" alias; "" if none given
	AggFunc    AggFunc
}

// Item is a resolved, bound projection entry: (source Name, resolved
// Column, base) per spec.md §3, plus its output name and aggregate tag.
type Item struct {
	Name       ermname.Name
	Column     *catalog.Column
	Base       BaseKind
	BaseAlias  string // set when Base == BaseAlias
	// BoundPos is the path element position SQL generation should qualify
	// this column against (t{BoundPos}.col).
	BoundPos   int
	OutputName string
	AggFunc    AggFunc
}

func baseOf(ref ermname.ColumnRef) (BaseKind, string) {
	switch {
	case ref.BoundAlias != "":
		return BaseAlias, ref.BoundAlias
	case ref.ModelOnly:
		return BaseModel, ""
	default:
		return BasePath, ""
	}
}

// TailDefault builds the Entity verb's implicit (no `;projection` suffix)
// row set: every column of the path's tail table, in declared order. Unlike
// a bare `*` run through Preprocess, this always binds to the path's final
// element (TailTable/TailPosition) and never to whatever table a preceding
// `$alias` context switch (epath.SetContext) left current — the original
// ermrest_apis.py Entity.GET never calls _preprocess_projection at all, it
// reads the tail directly, so a context shift earlier in the path must not
// change what an Entity GET with no projection returns (spec.md §8 scenario 4).
func TailDefault(path *epath.EntityPath) []Item {
	table := path.TailTable()
	pos := path.TailPosition()
	cols := table.ColumnsInOrder()
	out := make([]Item, len(cols))
	for i, col := range cols {
		out[i] = Item{
			Name:       ermname.New(col.Name),
			Column:     col,
			Base:       BasePath,
			BoundPos:   pos,
			OutputName: col.Name,
		}
	}
	return out
}

// Preprocess resolves and expands a raw projection list against model and
// path, implementing spec.md §4.4's `_preprocess_projection`: bare `*` (not
// combined with an aggregate function) expands to one item per column of
// its base table, in declared order; an aggregate over `*` collapses to a
// single row-count item instead.
func Preprocess(model *catalog.Model, path *epath.EntityPath, items []InputItem) ([]Item, error) {
	var out []Item

	for _, in := range items {
		ref, err := ermname.ResolveColumn(model, path, in.Name)
		if err != nil {
			return nil, err
		}
		base, alias := baseOf(ref)

		isWildcard := ref.Column.Freetext && in.Name.Kind() != ermname.FullyQualified

		if isWildcard && in.AggFunc == NoAgg {
			if in.OutputName != "" {
				return nil, apierr.New(apierr.BadSyntax, "wildcard column %q cannot be given an alias", in.Name.String())
			}
			switch base {
			case BasePath:
				table := path.CurrentTable()
				pos := path.ContextPosition()
				for _, col := range table.ColumnsInOrder() {
					out = append(out, Item{
						Name:       ermname.New(col.Name),
						Column:     col,
						Base:       BasePath,
						BoundPos:   pos,
						OutputName: col.Name,
					})
				}
			case BaseAlias:
				table, ok := path.AliasTable(alias)
				if !ok {
					return nil, apierr.New(apierr.BadData, "alias %q is not bound in entity path", alias)
				}
				pos := path.AliasPositions()[alias]
				for _, col := range table.ColumnsInOrder() {
					out = append(out, Item{
						Name:       ermname.New(alias, col.Name),
						Column:     col,
						Base:       BaseAlias,
						BaseAlias:  alias,
						BoundPos:   pos,
						OutputName: alias + ":" + col.Name,
					})
				}
			default:
				return nil, apierr.New(apierr.ConflictModel, "wildcard column %q has no valid expansion base", in.Name.String())
			}
			continue
		}

		if in.AggFunc != NoAgg && !validAggFunc(in.AggFunc) {
			return nil, apierr.New(apierr.BadSyntax, "unknown aggregate function %q", in.AggFunc)
		}

		var pos int
		switch base {
		case BasePath:
			pos = path.ContextPosition()
		case BaseAlias:
			pos = path.AliasPositions()[alias]
		case BaseModel:
			p, ok := path.PositionOfTable(ref.Column.Table)
			if !ok {
				return nil, apierr.New(apierr.ConflictModel, "referenced column %s not bound in entity path", ref.Column.Table.QualifiedName())
			}
			pos = p
		}

		outputName := in.OutputName
		if outputName == "" {
			outputName = ref.Column.Name
			if base == BaseAlias && !ref.Column.Freetext {
				outputName = alias + ":" + ref.Column.Name
			}
		}

		out = append(out, Item{
			Name:       in.Name,
			Column:     ref.Column,
			Base:       base,
			BaseAlias:  alias,
			BoundPos:   pos,
			OutputName: outputName,
			AggFunc:    in.AggFunc,
		})
	}

	return out, nil
}

// Package api wires the HTTP surface: request parsing (urlgrammar), path
// construction (epath via ermname), projection binding (projection), SQL
// rendering/execution (sqlgen via session), and response encoding (codec)
// into the five verb handlers spec.md §2 names.
package api

import (
	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/epath"
	"github.com/ermrest-eu/ermrestd/internal/ermname"
	"github.com/ermrest-eu/ermrestd/internal/projection"
	"github.com/ermrest-eu/ermrestd/internal/urlgrammar"
)

// buildPath drives an epath.EntityPath through model from the URL
// grammar's parsed entity-path segments, resolving every name against the
// path's current context as epath.PathContext requires (spec.md §4.3).
func buildPath(model *catalog.Model, segments []urlgrammar.Segment) (*epath.EntityPath, error) {
	path := epath.New(model)

	for i, seg := range segments {
		switch s := seg.(type) {
		case urlgrammar.TableStep:
			if i == 0 {
				table, err := ermname.ResolveTable(model, s.Name)
				if err != nil {
					return nil, err
				}
				if err := path.SetBaseEntity(table, s.Alias); err != nil {
					return nil, err
				}
				continue
			}
			fk, dir, err := ermname.ResolveLink(model, path, s.Name)
			if err != nil {
				return nil, err
			}
			if err := path.AddLink(fk, dir, s.Alias, ""); err != nil {
				return nil, err
			}

		case urlgrammar.FilterStep:
			expr, err := buildFilterExpr(model, path, s.Expr)
			if err != nil {
				return nil, err
			}
			if err := path.AddFilter(expr); err != nil {
				return nil, err
			}

		case urlgrammar.ContextStep:
			if err := path.SetContext(s.Alias); err != nil {
				return nil, err
			}

		case urlgrammar.SortStep:
			keys, err := buildSortKeys(model, path, s.Keys)
			if err != nil {
				return nil, err
			}
			if err := path.AddSort(keys); err != nil {
				return nil, err
			}

		case urlgrammar.PageStep:
			values := make([]epath.PageValue, len(s.Values))
			for i, v := range s.Values {
				values[i] = epath.PageValue{Value: v}
			}
			if err := path.SetPage(s.Before, values); err != nil {
				return nil, err
			}

		default:
			return nil, apierr.New(apierr.BadSyntax, "unknown entity-path segment type %T", seg)
		}
	}

	return path, nil
}

// columnPosition determines the path element position a resolved column
// reference binds against, mirroring the precedence projection.Preprocess
// applies when resolving a projection item's base.
func columnPosition(path *epath.EntityPath, ref ermname.ColumnRef) (int, error) {
	switch {
	case ref.BoundToPath:
		return path.ContextPosition(), nil
	case ref.BoundAlias != "":
		pos, ok := path.AliasPositions()[ref.BoundAlias]
		if !ok {
			return 0, apierr.New(apierr.BadData, "alias %q is not bound in entity path", ref.BoundAlias)
		}
		return pos, nil
	case ref.ModelOnly:
		pos, ok := path.PositionOfTable(ref.Column.Table)
		if !ok {
			return 0, apierr.New(apierr.ConflictModel, "referenced column %s not bound in entity path", ref.Column.Table.QualifiedName())
		}
		return pos, nil
	default:
		return 0, apierr.New(apierr.BadSyntax, "column reference has no resolvable binding")
	}
}

func buildFilterExpr(model *catalog.Model, path *epath.EntityPath, node urlgrammar.FilterNode) (epath.FilterExpr, error) {
	switch n := node.(type) {
	case urlgrammar.FilterPredicate:
		ref, err := ermname.ResolveColumn(model, path, n.Name)
		if err != nil {
			return nil, err
		}
		pos, err := columnPosition(path, ref)
		if err != nil {
			return nil, err
		}
		return epath.FilterLeaf{Predicate: epath.Predicate{
			Column:     ref.Column,
			BoundAlias: ref.BoundAlias,
			BoundPos:   pos,
			Op:         epath.CompareOp(n.Op),
			Value:      n.Value,
			Negate:     n.Negate,
		}}, nil

	case urlgrammar.FilterAnd:
		left, err := buildFilterExpr(model, path, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := buildFilterExpr(model, path, n.Right)
		if err != nil {
			return nil, err
		}
		return epath.FilterAnd{Left: left, Right: right}, nil

	case urlgrammar.FilterOr:
		left, err := buildFilterExpr(model, path, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := buildFilterExpr(model, path, n.Right)
		if err != nil {
			return nil, err
		}
		return epath.FilterOr{Left: left, Right: right}, nil

	default:
		return nil, apierr.New(apierr.BadSyntax, "unknown filter expression node %T", node)
	}
}

func buildSortKeys(model *catalog.Model, path *epath.EntityPath, keys []urlgrammar.SortKeyAST) ([]epath.SortKey, error) {
	out := make([]epath.SortKey, len(keys))
	for i, k := range keys {
		ref, err := ermname.ResolveColumn(model, path, k.Name)
		if err != nil {
			return nil, err
		}
		pos, err := columnPosition(path, ref)
		if err != nil {
			return nil, err
		}
		out[i] = epath.SortKey{
			BoundAlias: ref.BoundAlias,
			BoundPos:   pos,
			Column:     ref.Column,
			Descending: k.Descending,
		}
	}
	return out, nil
}

// toInputItems converts the URL grammar's raw projection/grouping items
// into projection.InputItem for projection.Preprocess.
func toInputItems(items []urlgrammar.ProjItem) []projection.InputItem {
	out := make([]projection.InputItem, len(items))
	for i, it := range items {
		out[i] = projection.InputItem{
			Name:       it.Name,
			OutputName: it.Alias,
			AggFunc:    projection.AggFunc(it.AggFunc),
		}
	}
	return out
}

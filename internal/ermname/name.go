// Package ermname resolves the 1/2/3-part names that appear in URL path
// segments and projections (C2) against a catalog.Model and the current
// entity-path context. It knows nothing about how a path is built — epath
// (C3) supplies a PathContext and consumes the resolved references.
package ermname

import (
	"strings"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
)

// Kind tags which of the five name shapes a Name takes, per spec.md §3's
// "tagged variant" name grammar.
type Kind int

const (
	// Unqualified is a single part: a bare column or table name, e.g. "id".
	Unqualified Kind = iota
	// Qualified is two parts: "alias:column" or "schema:table".
	Qualified
	// FullyQualified is three parts: "schema:table:column".
	FullyQualified
	// Wildcard is the bare "*" freetext/projection wildcard.
	Wildcard
	// AliasWildcard is "alias:*".
	AliasWildcard
)

// Name is a parsed, unresolved 1/2/3-part identifier from a URL.
type Name struct {
	Parts []string
}

// New builds a Name from already-decoded, colon-separated parts.
func New(parts ...string) Name {
	return Name{Parts: append([]string(nil), parts...)}
}

// reservedChars are URL-grammar metacharacters (filter operators, context
// shift, sort/page modifiers) that can never appear inside a legitimate
// identifier part; their presence means the input is not a name at all,
// which urlgrammar leans on to tell a projection item apart from a filter.
const reservedChars = "=!&;$@"

// Parse splits a colon-separated name into a Name; empty input, an empty
// part, or a part containing a reserved grammar metacharacter is invalid.
func Parse(raw string) (Name, error) {
	if raw == "" {
		return Name{}, apierr.New(apierr.BadSyntax, "empty name")
	}
	parts := strings.Split(raw, ":")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, reservedChars) {
			return Name{}, apierr.New(apierr.BadSyntax, "invalid name %q", raw)
		}
	}
	return Name{Parts: parts}, nil
}

// String renders the name back to its colon-separated form.
func (n Name) String() string { return strings.Join(n.Parts, ":") }

// Kind classifies the name by part count and trailing wildcard.
func (n Name) Kind() Kind {
	switch len(n.Parts) {
	case 1:
		if n.Parts[0] == "*" {
			return Wildcard
		}
		return Unqualified
	case 2:
		if n.Parts[1] == "*" {
			return AliasWildcard
		}
		return Qualified
	case 3:
		return FullyQualified
	default:
		return Unqualified
	}
}

// PathContext is the minimal view of an in-progress entity path that name
// resolution needs. epath.EntityPath implements this.
type PathContext interface {
	// CurrentTable is the table type of the path's current context element:
	// the rightmost entity element unless a $alias segment shifted the context.
	CurrentTable() *catalog.Table
	// AliasTable resolves a bound alias to the table it was entered with.
	AliasTable(alias string) (*catalog.Table, bool)
}

// ColumnRef is the resolved result of resolving a column name: the column
// itself, plus where it is bound. Exactly one of the Bound* fields applies.
type ColumnRef struct {
	Column *catalog.Column
	// BoundToPath is true when the column belongs to the path's current
	// entity table (no alias prefix).
	BoundToPath bool
	// BoundAlias is non-empty when the column is qualified by a bound path alias.
	BoundAlias string
	// ModelOnly is true for a fully-qualified schema:table:column reference
	// that is not bound to any path element (resolved directly against the model).
	ModelOnly bool
}

// ResolveColumn resolves a Name to a column against model and ctx, following
// the six-case precedence spec.md §4.2 inherits from ERMrest name
// resolution: bare column or bare "*" freetext on the path's current table;
// alias:column or alias:* when the first part is a bound path alias,
// otherwise table:column with the table looked up by name across all schemas;
// finally the fully-qualified schema:table:column model form.
func ResolveColumn(model *catalog.Model, ctx PathContext, n Name) (ColumnRef, error) {
	ptable := ctx.CurrentTable()

	switch len(n.Parts) {
	case 3:
		table, err := model.LookupTable(n.Parts[0], n.Parts[1])
		if err != nil {
			return ColumnRef{}, err
		}
		col, ok := table.Column(n.Parts[2])
		if !ok {
			return ColumnRef{}, apierr.New(apierr.ConflictModel, "column %s does not exist in table %s", n.Parts[2], table.QualifiedName())
		}
		return ColumnRef{Column: col, ModelOnly: true}, nil

	case 1:
		if n.Parts[0] == "*" {
			return ColumnRef{Column: ptable.FreetextColumn(), BoundToPath: true}, nil
		}
		col, ok := ptable.Column(n.Parts[0])
		if !ok {
			return ColumnRef{}, apierr.New(apierr.ConflictModel, "column %s does not exist in table %s", n.Parts[0], ptable.QualifiedName())
		}
		return ColumnRef{Column: col, BoundToPath: true}, nil

	case 2:
		n0, n1 := n.Parts[0], n.Parts[1]
		if aliasTable, ok := ctx.AliasTable(n0); ok {
			if n1 == "*" {
				return ColumnRef{Column: aliasTable.FreetextColumn(), BoundAlias: n0}, nil
			}
			col, ok := aliasTable.Column(n1)
			if !ok {
				return ColumnRef{}, apierr.New(apierr.ConflictModel, "column %s does not exist in table %s (alias %s)", n1, aliasTable.QualifiedName(), n0)
			}
			return ColumnRef{Column: col, BoundAlias: n0}, nil
		}

		table, err := model.LookupTable("", n0)
		if err != nil {
			return ColumnRef{}, err
		}
		col, ok := table.Column(n1)
		if !ok {
			return ColumnRef{}, apierr.New(apierr.ConflictModel, "column %s does not exist in table %s", n1, table.Name)
		}
		return ColumnRef{Column: col, ModelOnly: true}, nil
	}

	return ColumnRef{}, apierr.New(apierr.BadSyntax, "name %q is not valid syntax for a column reference", n.String())
}

// ResolveContext resolves a Name to a bound path alias string; it is the
// target of the "$alias" context-shift path segment (spec.md §4.3).
func ResolveContext(ctx PathContext, n Name) (string, error) {
	if len(n.Parts) != 1 {
		return "", apierr.New(apierr.BadSyntax, "context name %q is not valid syntax for an entity alias", n.String())
	}
	alias := n.Parts[0]
	if _, ok := ctx.AliasTable(alias); !ok {
		return "", apierr.New(apierr.BadData, "context name %q is not a bound alias in the entity path", alias)
	}
	return alias, nil
}

// ResolveTable resolves a Name to a single catalog Table: 2-part names are
// schema:table; 1-part names must be unambiguous across the whole model.
func ResolveTable(model *catalog.Model, n Name) (*catalog.Table, error) {
	switch len(n.Parts) {
	case 2:
		return model.LookupTable(n.Parts[0], n.Parts[1])
	case 1:
		return model.LookupTable("", n.Parts[0])
	}
	return nil, apierr.New(apierr.BadSyntax, "name %q is not valid syntax for a table name", n.String())
}

// ResolveLink resolves a Name to a table and then infers the unique link
// between the path's current table and that table (spec.md §4.1/§4.3).
func ResolveLink(model *catalog.Model, ctx PathContext, n Name) (*catalog.ForeignKey, catalog.Direction, error) {
	if len(n.Parts) != 1 && len(n.Parts) != 2 {
		return nil, "", apierr.New(apierr.BadSyntax, "name %q is not valid syntax for a table name", n.String())
	}
	table, err := ResolveTable(model, n)
	if err != nil {
		return nil, "", err
	}
	return model.DefaultLink(ctx.CurrentTable(), table)
}

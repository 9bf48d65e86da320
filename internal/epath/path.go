// Package epath implements C3, the entity-path builder: the state machine
// that accumulates a base table, joins, filters, alias bindings, context
// shifts, and sort/page keys into a frozen, ordered structure that C4 and
// C5 consume. It never touches SQL or the database directly.
package epath

import (
	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
)

// CompareOp is a filter comparison operator token, matching the URL
// grammar's `col::op::val` suffix (spec.md §6); "=" is the bare `col=val` form.
type CompareOp string

const (
	OpEqual       CompareOp = "="
	OpGreater     CompareOp = "gt"
	OpGreaterOrEq CompareOp = "geq"
	OpLess        CompareOp = "lt"
	OpLessOrEq    CompareOp = "leq"
	OpRegexp      CompareOp = "regexp"
	OpCIRegexp    CompareOp = "ciregexp"
	OpTextSearch  CompareOp = "ts"
)

// Predicate is a single leaf comparison: a resolved column against a literal value.
type Predicate struct {
	Column *catalog.Column
	// BoundAlias is the alias the column was qualified by, or "" when the
	// predicate binds to the element that was context at attachment time.
	BoundAlias string
	BoundPos   int
	Op         CompareOp
	Value      string
	Negate     bool
}

// FilterExpr is a boolean predicate tree node: a Predicate leaf, or an And/Or
// combination of two subtrees built from "&" and ";" in the URL grammar.
type FilterExpr interface {
	isFilterExpr()
}

// FilterLeaf wraps a single Predicate.
type FilterLeaf struct{ Predicate Predicate }

// FilterAnd conjoins two subtrees ("&" in the URL grammar).
type FilterAnd struct{ Left, Right FilterExpr }

// FilterOr disjoins two subtrees (";" in the URL grammar).
type FilterOr struct{ Left, Right FilterExpr }

func (FilterLeaf) isFilterExpr() {}
func (FilterAnd) isFilterExpr()  {}
func (FilterOr) isFilterExpr()   {}

// SortKey is one column of an @sort(...) clause.
type SortKey struct {
	BoundAlias string
	BoundPos   int
	Column     *catalog.Column
	Descending bool
}

// PageValue is one literal of an @before/@after tuple, paired positionally
// with the sort keys it bounds.
type PageValue struct {
	Value string
}

// PathElement is one step of the entity path: a table, reached from the
// previous element (except element 0, the base) across a bound ForeignKey.
type PathElement struct {
	Position  int
	Alias     string
	Table     *catalog.Table
	Link      *catalog.ForeignKey // nil for the base element
	Direction catalog.Direction
	// SourcePosition is the element this one was joined from.
	SourcePosition int
	// Filters attached while this element was the path's context, conjoined.
	Filters []FilterExpr
}

type state int

const (
	stateEmpty state = iota
	stateBased
	stateProjected
)

// EntityPath is the mutable builder for C3; once Freeze is called it
// becomes read-only, matching spec.md §4.3's "empty → based →
// {filtered,linked,context-shifted}* → projected (frozen)" state machine.
type EntityPath struct {
	model      *catalog.Model
	state      state
	elements   []*PathElement
	aliasPos   map[string]int
	contextPos int

	sort       []SortKey
	pageBefore []PageValue
	pageAfter  []PageValue
}

// New starts an empty path against model.
func New(model *catalog.Model) *EntityPath {
	return &EntityPath{model: model, aliasPos: map[string]int{}}
}

func (p *EntityPath) checkMutable() error {
	if p.state == stateProjected {
		return apierr.New(apierr.BadSyntax, "entity path is frozen; no further elements may be appended")
	}
	return nil
}

// SetBaseEntity initializes element 0. alias, if non-empty, is registered.
func (p *EntityPath) SetBaseEntity(table *catalog.Table, alias string) error {
	if p.state != stateEmpty {
		return apierr.New(apierr.BadSyntax, "base entity already set")
	}
	elem := &PathElement{Position: 0, Alias: alias, Table: table, SourcePosition: -1}
	p.elements = append(p.elements, elem)
	if alias != "" {
		p.aliasPos[alias] = 0
	}
	p.contextPos = 0
	p.state = stateBased
	return nil
}

// AddLink appends a new element joined from the current context position
// (or from sourceAlias's position, if given) via fk/direction. If alias is
// set it must be unique in the path. The new element becomes the context.
func (p *EntityPath) AddLink(fk *catalog.ForeignKey, direction catalog.Direction, alias, sourceAlias string) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if p.state == stateEmpty {
		return apierr.New(apierr.BadSyntax, "cannot add a link before the base entity is set")
	}

	sourcePos := p.contextPos
	if sourceAlias != "" {
		pos, ok := p.aliasPos[sourceAlias]
		if !ok {
			return apierr.New(apierr.BadData, "alias %q is not bound in entity path", sourceAlias)
		}
		sourcePos = pos
	}

	if alias != "" {
		if _, dup := p.aliasPos[alias]; dup {
			return apierr.New(apierr.ConflictModel, "alias %q is already bound in entity path", alias)
		}
	}

	var newTable *catalog.Table
	switch direction {
	case catalog.LeftToRight:
		newTable = fk.TargetTable()
	case catalog.RightToLeft:
		newTable = fk.Table
	default:
		return apierr.New(apierr.BadSyntax, "unknown join direction %q", direction)
	}

	pos := len(p.elements)
	elem := &PathElement{
		Position:       pos,
		Alias:          alias,
		Table:          newTable,
		Link:           fk,
		Direction:      direction,
		SourcePosition: sourcePos,
	}
	p.elements = append(p.elements, elem)
	if alias != "" {
		p.aliasPos[alias] = pos
	}
	p.contextPos = pos
	return nil
}

// AddFilter attaches expr to the current context element, conjoined with
// any filters already attached there (idempotent composition regardless of
// attachment order, modulo AND commutativity — spec.md §8).
func (p *EntityPath) AddFilter(expr FilterExpr) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if p.state == stateEmpty {
		return apierr.New(apierr.BadSyntax, "cannot add a filter before the base entity is set")
	}
	elem := p.elements[p.contextPos]
	elem.Filters = append(elem.Filters, expr)
	return nil
}

// SetContext shifts the path's context to the element bound to alias.
// Subsequent filters and links resolve relative to this context; the
// element sequence itself is unchanged.
func (p *EntityPath) SetContext(alias string) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	pos, ok := p.aliasPos[alias]
	if !ok {
		return apierr.New(apierr.BadData, "context name %q is not a bound alias in entity path", alias)
	}
	p.contextPos = pos
	return nil
}

// AddSort attaches the path's sort order. Page keys set afterward must
// match its arity.
func (p *EntityPath) AddSort(keys []SortKey) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	p.sort = keys
	return nil
}

// SetPage sets a before or after page key tuple; its arity must match the
// path's current sort, or this is a bad-request error.
func (p *EntityPath) SetPage(before bool, keys []PageValue) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if len(p.sort) > 0 && len(keys) != len(p.sort) {
		return apierr.New(apierr.BadSyntax, "page key has %d parts but sort key has %d", len(keys), len(p.sort))
	}
	if before {
		p.pageBefore = keys
	} else {
		p.pageAfter = keys
	}
	return nil
}

// Freeze transitions the path to "projected": no further elements may be
// appended. Called once a projection, grouping, or aggregate is attached.
func (p *EntityPath) Freeze() {
	p.state = stateProjected
}

// Frozen reports whether the path has been frozen.
func (p *EntityPath) Frozen() bool { return p.state == stateProjected }

// CurrentTable implements ermname.PathContext: the table of the current
// context element, used to resolve bare column names and link targets.
func (p *EntityPath) CurrentTable() *catalog.Table {
	return p.elements[p.contextPos].Table
}

// AliasTable implements ermname.PathContext: resolves a bound alias to its
// element's table.
func (p *EntityPath) AliasTable(alias string) (*catalog.Table, bool) {
	pos, ok := p.aliasPos[alias]
	if !ok {
		return nil, false
	}
	return p.elements[pos].Table, true
}

// TailPosition is the index of the path's final element — the entity type
// addressed by an Entity/Attribute/AttributeGroup/Aggregate response,
// independent of any context shift (spec.md §8 scenario 4).
func (p *EntityPath) TailPosition() int { return len(p.elements) - 1 }

// TailTable is the table of the path's final element.
func (p *EntityPath) TailTable() *catalog.Table {
	return p.elements[p.TailPosition()].Table
}

// ContextPosition is the index of the element filters/links currently resolve against.
func (p *EntityPath) ContextPosition() int { return p.contextPos }

// Elements returns the path's elements in order. Callers must not mutate the slice.
func (p *EntityPath) Elements() []*PathElement { return p.elements }

// ElementAt returns the element at pos.
func (p *EntityPath) ElementAt(pos int) *PathElement { return p.elements[pos] }

// Model returns the catalog model this path was built against.
func (p *EntityPath) Model() *catalog.Model { return p.model }

// Sort returns the path's attached sort keys, if any.
func (p *EntityPath) Sort() []SortKey { return p.sort }

// Page returns the before/after page key tuples attached to the path.
func (p *EntityPath) Page() (before, after []PageValue) { return p.pageBefore, p.pageAfter }

// PositionOfTable finds the first path element whose table is t, for
// resolving fully-qualified (model-absolute) column references back to a
// bound path position (spec.md §4.2 case 3; mirrors the original
// implementation's Name.validate()).
func (p *EntityPath) PositionOfTable(t *catalog.Table) (int, bool) {
	for _, elem := range p.elements {
		if elem.Table == t {
			return elem.Position, true
		}
	}
	return 0, false
}

// AliasPositions exposes the alias → position table for components (C4/C5)
// that must resolve bound aliases back to element positions.
func (p *EntityPath) AliasPositions() map[string]int {
	out := make(map[string]int, len(p.aliasPos))
	for k, v := range p.aliasPos {
		out[k] = v
	}
	return out
}

// Package urlgrammar lexes and parses the URL path+query grammar of spec.md
// §6 into an AST that internal/api feeds, element by element, into C3's
// EntityPath builder and C4's projection planner. It knows nothing about
// the catalog model — every Name it produces is unresolved syntax, resolved
// later by internal/ermname against the model and the in-progress path.
package urlgrammar

import "github.com/ermrest-eu/ermrestd/internal/ermname"

// Verb is the data-path endpoint a request addresses (spec.md §2/§6).
type Verb string

const (
	Entity         Verb = "entity"
	Attribute      Verb = "attribute"
	AttributeGroup Verb = "attributegroup"
	Aggregate      Verb = "aggregate"
	TextFacet      Verb = "textfacet"
)

// Request is the fully parsed form of one data-path URL: a catalog id, a
// verb, the ordered entity-path segments, an optional output projection
// (and, for AttributeGroup, an optional group-key list), and query options.
type Request struct {
	CatalogID  int64
	Verb       Verb
	Segments   []Segment
	Group      []ProjItem
	Projection []ProjItem
	QueryOpts  map[string][]string
}

// Segment is one '/'-separated step of an entity path.
type Segment interface{ isSegment() }

// TableStep names a base table or an entity-path join step (explicit or
// left for inference at resolution time), optionally binding alias to it.
type TableStep struct {
	Alias string
	Name  ermname.Name
}

// FilterStep attaches a boolean predicate tree to the path's current context.
type FilterStep struct {
	Expr FilterNode
}

// ContextStep ("$alias") shifts the path's current context to a bound alias.
type ContextStep struct {
	Alias string
}

// SortStep ("@sort(...)") attaches the path's ordering.
type SortStep struct {
	Keys []SortKeyAST
}

// PageStep ("@before(...)" / "@after(...)") attaches a pagination cursor.
type PageStep struct {
	Before bool
	Values []string
}

func (TableStep) isSegment()   {}
func (FilterStep) isSegment()  {}
func (ContextStep) isSegment() {}
func (SortStep) isSegment()    {}
func (PageStep) isSegment()    {}

// SortKeyAST is one column of an @sort(...) clause; ::desc:: after a column
// name reverses its direction, matching the rest of the grammar's `::op::`
// suffix convention.
type SortKeyAST struct {
	Name       ermname.Name
	Descending bool
}

// FilterNode is a boolean predicate tree node.
type FilterNode interface{ isFilterNode() }

// CompareOp is a filter comparison operator token (spec.md §6's `col::op::val`).
type CompareOp string

const (
	OpEqual      CompareOp = "="
	OpGreater    CompareOp = "gt"
	OpGreaterEq  CompareOp = "geq"
	OpLess       CompareOp = "lt"
	OpLessEq     CompareOp = "leq"
	OpRegexp     CompareOp = "regexp"
	OpCIRegexp   CompareOp = "ciregexp"
	OpTextSearch CompareOp = "ts"
)

// FilterPredicate is a single leaf comparison: an unresolved name against a
// literal value, with an optional leading "!" negation.
type FilterPredicate struct {
	Name   ermname.Name
	Op     CompareOp
	Value  string
	Negate bool
}

// FilterAnd conjoins two subtrees ("&" in the URL grammar).
type FilterAnd struct{ Left, Right FilterNode }

// FilterOr disjoins two subtrees (";" in the URL grammar).
type FilterOr struct{ Left, Right FilterNode }

func (FilterPredicate) isFilterNode() {}
func (FilterAnd) isFilterNode()       {}
func (FilterOr) isFilterNode()        {}

// ProjItem is one item of a projection or group-key list: an unresolved
// name, an optional output alias, and an optional aggregate function tag.
type ProjItem struct {
	Name    ermname.Name
	Alias   string
	AggFunc string
}

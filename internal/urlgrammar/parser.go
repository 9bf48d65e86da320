package urlgrammar

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/ermname"
)

var verbs = map[string]Verb{
	string(Entity):         Entity,
	string(Attribute):      Attribute,
	string(AttributeGroup): AttributeGroup,
	string(Aggregate):      Aggregate,
	string(TextFacet):      TextFacet,
}

var aggFuncPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// ParseRequest parses the already-percent-decoded path
// "/catalog/{id}/{verb}/{entity-path}[;{projection}]" plus a raw query
// string into a Request. Percent-decoding of the path is the HTTP layer's
// job (internal/api); this package only decodes individual filter/name
// tokens that the grammar itself allows to carry `%XX` escapes for literal
// values containing grammar metacharacters.
func ParseRequest(rawPath, rawQuery string) (*Request, error) {
	path := strings.Trim(rawPath, "/")
	parts := strings.Split(path, "/")
	if len(parts) < 3 || parts[0] != "catalog" {
		return nil, apierr.New(apierr.BadSyntax, "path must begin with /catalog/{id}/{verb}/...")
	}

	catalogID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, apierr.New(apierr.BadSyntax, "catalog id %q is not an integer", parts[1])
	}

	verb, ok := verbs[parts[2]]
	if !ok {
		return nil, apierr.New(apierr.BadSyntax, "unknown verb %q", parts[2])
	}

	req := &Request{CatalogID: catalogID, Verb: verb, QueryOpts: map[string][]string{}}

	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, apierr.Wrap(apierr.BadSyntax, err, "malformed query string")
		}
		for k, v := range values {
			req.QueryOpts[k] = v
		}
	}

	rest := parts[3:]
	if len(rest) == 1 && rest[0] == "" {
		rest = nil
	}
	if len(rest) == 0 {
		return req, nil
	}

	projection, group, lastSegment, err := splitTrailingProjection(verb, rest[len(rest)-1])
	if err != nil {
		return nil, err
	}
	req.Projection = projection
	req.Group = group
	rest[len(rest)-1] = lastSegment
	if rest[len(rest)-1] == "" {
		rest = rest[:len(rest)-1]
	}

	for _, raw := range rest {
		seg, err := parseSegment(raw)
		if err != nil {
			return nil, err
		}
		req.Segments = append(req.Segments, seg)
	}

	return req, nil
}

// splitTrailingProjection peels an optional ";projection" (or, for
// AttributeGroup, "group;projection") suffix off the entity-path's final
// segment. It only commits to the split when the suffix parses cleanly as
// a projection list — a bare ";" inside a filter predicate is a boolean OR,
// not a projection separator, and must be left alone.
func splitTrailingProjection(verb Verb, last string) (projection, group []ProjItem, remainder string, err error) {
	idx := strings.Index(last, ";")
	if idx < 0 {
		return nil, nil, last, nil
	}

	head, tail := last[:idx], last[idx+1:]
	items, perr := parseProjItemList(tail)
	if perr != nil {
		// Not a valid projection list; treat the whole segment as a filter
		// whose ";" is a literal disjunction operator.
		return nil, nil, last, nil
	}

	if verb == AttributeGroup {
		groupItems, gerr := parseProjItemList(head)
		if gerr == nil && head != "" {
			return items, groupItems, "", nil
		}
	}

	return items, nil, head, nil
}

func parseSegment(raw string) (Segment, error) {
	if raw == "" {
		return nil, apierr.New(apierr.BadSyntax, "empty entity-path segment")
	}

	if strings.HasPrefix(raw, "$") {
		return ContextStep{Alias: raw[1:]}, nil
	}

	if strings.HasPrefix(raw, "@sort(") && strings.HasSuffix(raw, ")") {
		return parseSortStep(raw[len("@sort(") : len(raw)-1])
	}
	if strings.HasPrefix(raw, "@before(") && strings.HasSuffix(raw, ")") {
		return PageStep{Before: true, Values: splitUnescape(raw[len("@before(") : len(raw)-1])}, nil
	}
	if strings.HasPrefix(raw, "@after(") && strings.HasSuffix(raw, ")") {
		return PageStep{Before: false, Values: splitUnescape(raw[len("@after(") : len(raw)-1])}, nil
	}

	if alias, remainder, ok := strings.Cut(raw, ":="); ok {
		name, err := ermname.Parse(remainder)
		if err != nil {
			return nil, err
		}
		return TableStep{Alias: alias, Name: name}, nil
	}

	if looksLikeFilter(raw) {
		expr, err := parseOrExpr(raw)
		if err != nil {
			return nil, err
		}
		return FilterStep{Expr: expr}, nil
	}

	name, err := ermname.Parse(raw)
	if err != nil {
		return nil, err
	}
	return TableStep{Name: name}, nil
}

func looksLikeFilter(raw string) bool {
	return strings.ContainsAny(raw, "=;&") || strings.HasPrefix(raw, "!")
}

func parseSortStep(raw string) (SortStep, error) {
	var keys []SortKeyAST
	for _, tok := range splitUnescape(raw) {
		desc := false
		name := tok
		if strings.HasSuffix(tok, "::desc::") {
			desc = true
			name = strings.TrimSuffix(tok, "::desc::")
		}
		n, err := ermname.Parse(name)
		if err != nil {
			return SortStep{}, err
		}
		keys = append(keys, SortKeyAST{Name: n, Descending: desc})
	}
	return SortStep{Keys: keys}, nil
}

func splitUnescape(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		if unescaped, err := url.QueryUnescape(p); err == nil {
			out[i] = unescaped
		} else {
			out[i] = p
		}
	}
	return out
}

// parseOrExpr parses a "&"/";" filter expression; "&" (AND) binds tighter
// than ";" (OR), matching the URL grammar's conjunction/disjunction split.
func parseOrExpr(raw string) (FilterNode, error) {
	terms := splitTopLevel(raw, ';')
	var node FilterNode
	for _, term := range terms {
		and, err := parseAndExpr(term)
		if err != nil {
			return nil, err
		}
		if node == nil {
			node = and
		} else {
			node = FilterOr{Left: node, Right: and}
		}
	}
	return node, nil
}

func parseAndExpr(raw string) (FilterNode, error) {
	atoms := splitTopLevel(raw, '&')
	var node FilterNode
	for _, atom := range atoms {
		pred, err := parsePredicate(atom)
		if err != nil {
			return nil, err
		}
		if node == nil {
			node = pred
		} else {
			node = FilterAnd{Left: node, Right: pred}
		}
	}
	return node, nil
}

// splitTopLevel splits raw on sep, ignoring occurrences inside the literal
// value half of a "col::op::val" token (op/val never contain the filter's
// own metacharacters in this grammar, so a plain split is exact).
func splitTopLevel(raw string, sep byte) []string {
	return strings.Split(raw, string(sep))
}

func parsePredicate(raw string) (FilterPredicate, error) {
	negate := false
	if strings.HasPrefix(raw, "!") {
		negate = true
		raw = raw[1:]
	}

	if strings.Contains(raw, "::") {
		parts := strings.SplitN(raw, "::", 3)
		if len(parts) != 3 {
			return FilterPredicate{}, apierr.New(apierr.BadSyntax, "malformed col::op::val filter %q", raw)
		}
		name, err := ermname.Parse(parts[0])
		if err != nil {
			return FilterPredicate{}, err
		}
		val, err := url.QueryUnescape(parts[2])
		if err != nil {
			val = parts[2]
		}
		return FilterPredicate{Name: name, Op: CompareOp(parts[1]), Value: val, Negate: negate}, nil
	}

	name, value, ok := strings.Cut(raw, "=")
	if !ok {
		return FilterPredicate{}, apierr.New(apierr.BadSyntax, "malformed filter %q", raw)
	}
	n, err := ermname.Parse(name)
	if err != nil {
		return FilterPredicate{}, err
	}
	val, err := url.QueryUnescape(value)
	if err != nil {
		val = value
	}
	return FilterPredicate{Name: n, Op: OpEqual, Value: val, Negate: negate}, nil
}

func parseProjItemList(raw string) ([]ProjItem, error) {
	if raw == "" {
		return nil, nil
	}
	var items []ProjItem
	for _, tok := range strings.Split(raw, ",") {
		item, err := parseProjItem(tok)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseProjItem(raw string) (ProjItem, error) {
	alias := ""
	if a, remainder, ok := strings.Cut(raw, ":="); ok {
		alias = a
		raw = remainder
	}

	if m := aggFuncPattern.FindStringSubmatch(raw); m != nil {
		name, err := ermname.Parse(m[2])
		if err != nil {
			return ProjItem{}, err
		}
		return ProjItem{Name: name, Alias: alias, AggFunc: m[1]}, nil
	}

	name, err := ermname.Parse(raw)
	if err != nil {
		return ProjItem{}, err
	}
	return ProjItem{Name: name, Alias: alias}, nil
}

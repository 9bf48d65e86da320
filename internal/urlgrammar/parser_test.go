package urlgrammar

import (
	"testing"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/ermname"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestSimpleEntity(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/S:people", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.CatalogID)
	assert.Equal(t, Entity, req.Verb)
	require.Len(t, req.Segments, 1)
	step, ok := req.Segments[0].(TableStep)
	require.True(t, ok)
	assert.Equal(t, ermname.New("S", "people"), step.Name)
}

func TestParseRequestInferredJoin(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/S:people/S:dept", "")
	require.NoError(t, err)
	require.Len(t, req.Segments, 2)
	assert.Equal(t, ermname.New("S", "dept"), req.Segments[1].(TableStep).Name)
}

func TestParseRequestAliasBinding(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/P:=S:people/S:dept/$P/name=alice", "")
	require.NoError(t, err)
	require.Len(t, req.Segments, 4)

	assert.Equal(t, "P", req.Segments[0].(TableStep).Alias)
	assert.Equal(t, ermname.New("S", "dept"), req.Segments[1].(TableStep).Name)
	assert.Equal(t, ContextStep{Alias: "P"}, req.Segments[2])

	filter, ok := req.Segments[3].(FilterStep)
	require.True(t, ok)
	pred, ok := filter.Expr.(FilterPredicate)
	require.True(t, ok)
	assert.Equal(t, ermname.New("name"), pred.Name)
	assert.Equal(t, OpEqual, pred.Op)
	assert.Equal(t, "alice", pred.Value)
}

func TestParseRequestFilterOperators(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/S:people/age::gt::21&!name=bob", "")
	require.NoError(t, err)
	filter := req.Segments[1].(FilterStep)
	and, ok := filter.Expr.(FilterAnd)
	require.True(t, ok)

	left := and.Left.(FilterPredicate)
	assert.Equal(t, ermname.New("age"), left.Name)
	assert.Equal(t, OpGreater, left.Op)
	assert.Equal(t, "21", left.Value)

	right := and.Right.(FilterPredicate)
	assert.Equal(t, ermname.New("name"), right.Name)
	assert.True(t, right.Negate)
	assert.Equal(t, "bob", right.Value)
}

func TestParseRequestDisjunction(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/S:people/name=alice;name=bob", "")
	require.NoError(t, err)
	filter := req.Segments[1].(FilterStep)
	or, ok := filter.Expr.(FilterOr)
	require.True(t, ok)
	assert.Equal(t, "alice", or.Left.(FilterPredicate).Value)
	assert.Equal(t, "bob", or.Right.(FilterPredicate).Value)
}

func TestParseRequestSortAndPage(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/S:people/@sort(name,id::desc::)/@after(alice,7)", "limit=2")
	require.NoError(t, err)
	sort := req.Segments[1].(SortStep)
	require.Len(t, sort.Keys, 2)
	assert.False(t, sort.Keys[0].Descending)
	assert.True(t, sort.Keys[1].Descending)
	assert.Equal(t, ermname.New("id"), sort.Keys[1].Name)

	page := req.Segments[2].(PageStep)
	assert.False(t, page.Before)
	assert.Equal(t, []string{"alice", "7"}, page.Values)

	assert.Equal(t, []string{"2"}, req.QueryOpts["limit"])
}

func TestParseRequestProjectionSuffix(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity/S:people;name,person_id:=id", "")
	require.NoError(t, err)
	require.Len(t, req.Segments, 1)
	require.Len(t, req.Projection, 2)
	assert.Equal(t, ermname.New("name"), req.Projection[0].Name)
	assert.Equal(t, ermname.New("id"), req.Projection[1].Name)
	assert.Equal(t, "person_id", req.Projection[1].Alias)
}

func TestParseRequestProjectionWildcardAndAggregate(t *testing.T) {
	req, err := ParseRequest("/catalog/1/attribute/S:people;*,total:=cnt(id)", "")
	require.NoError(t, err)
	require.Len(t, req.Projection, 2)
	assert.Equal(t, ermname.New("*"), req.Projection[0].Name)
	assert.Equal(t, "cnt", req.Projection[1].AggFunc)
	assert.Equal(t, ermname.New("id"), req.Projection[1].Name)
	assert.Equal(t, "total", req.Projection[1].Alias)
}

func TestParseRequestAttributeGroupSplitsGroupAndProjection(t *testing.T) {
	req, err := ParseRequest("/catalog/1/attributegroup/S:people/dept_id;total:=cnt(id)", "")
	require.NoError(t, err)
	require.Len(t, req.Group, 1)
	assert.Equal(t, ermname.New("dept_id"), req.Group[0].Name)
	require.Len(t, req.Projection, 1)
	assert.Equal(t, "cnt", req.Projection[0].AggFunc)
}

func TestParseRequestDisjunctionNotMistakenForProjection(t *testing.T) {
	// The trailing ";name=bob" does not parse as a projection item (it has
	// a filter operator), so it must stay part of the filter expression.
	req, err := ParseRequest("/catalog/1/entity/S:people/name=alice;name=bob", "")
	require.NoError(t, err)
	assert.Empty(t, req.Projection)
	_, ok := req.Segments[1].(FilterStep)
	assert.True(t, ok)
}

func TestParseRequestRejectsBadPrefix(t *testing.T) {
	_, err := ParseRequest("/notcatalog/1/entity/S:people", "")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestParseRequestRejectsUnknownVerb(t *testing.T) {
	_, err := ParseRequest("/catalog/1/bogus/S:people", "")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestParseRequestRejectsNonIntegerCatalog(t *testing.T) {
	_, err := ParseRequest("/catalog/abc/entity/S:people", "")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestParseRequestNoEntityPath(t *testing.T) {
	req, err := ParseRequest("/catalog/1/entity", "")
	require.NoError(t, err)
	assert.Empty(t, req.Segments)
}

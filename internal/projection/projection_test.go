package projection

import (
	"testing"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/epath"
	"github.com/ermrest-eu/ermrestd/internal/ermname"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() *catalog.Model {
	return catalog.NewBuilder(1, 1).
		Table("public", "people", "id", "name", "dept_id").
		Table("public", "dept", "id", "name").
		UniqueKey("public", "people", "id").
		UniqueKey("public", "dept", "id").
		ForeignKey("public", "people", []string{"dept_id"}, "public", "dept", []string{"id"}).
		Build()
}

func testPath(t *testing.T, m *catalog.Model) (*epath.EntityPath, *catalog.Table, *catalog.Table) {
	t.Helper()
	schema, _ := m.Schema("public")
	people, _ := schema.Table("people")
	dept, _ := schema.Table("dept")
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, "P"))
	fk, dir, err := m.DefaultLink(people, dept)
	require.NoError(t, err)
	require.NoError(t, p.AddLink(fk, dir, "D", ""))
	return p, people, dept
}

func TestPreprocessBareColumn(t *testing.T) {
	m := testModel()
	p, _, _ := testPath(t, m)

	items, err := Preprocess(m, p, []InputItem{{Name: ermname.New("name")}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "name", items[0].Column.Name)
	assert.Equal(t, BasePath, items[0].Base)
	assert.Equal(t, "name", items[0].OutputName)
}

func TestPreprocessWildcardExpandsTailInOrder(t *testing.T) {
	m := testModel()
	p, _, dept := testPath(t, m)

	items, err := Preprocess(m, p, []InputItem{{Name: ermname.New("*")}})
	require.NoError(t, err)
	require.Len(t, items, len(dept.ColumnsInOrder()))
	for i, col := range dept.ColumnsInOrder() {
		assert.Equal(t, col.Name, items[i].Column.Name)
		assert.Equal(t, col.Name, items[i].OutputName)
		assert.Equal(t, BasePath, items[i].Base)
	}
}

func TestPreprocessWildcardExpandsAliasWithPrefixedNames(t *testing.T) {
	m := testModel()
	p, people, _ := testPath(t, m)

	items, err := Preprocess(m, p, []InputItem{{Name: ermname.New("P", "*")}})
	require.NoError(t, err)
	require.Len(t, items, len(people.ColumnsInOrder()))
	for i, col := range people.ColumnsInOrder() {
		assert.Equal(t, "P:"+col.Name, items[i].OutputName)
		assert.Equal(t, BaseAlias, items[i].Base)
		assert.Equal(t, "P", items[i].BaseAlias)
	}
}

func TestPreprocessWildcardRejectsAlias(t *testing.T) {
	m := testModel()
	p, _, _ := testPath(t, m)

	_, err := Preprocess(m, p, []InputItem{{Name: ermname.New("*"), OutputName: "everything"}})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestPreprocessAggregateOverWildcardIsRowCount(t *testing.T) {
	m := testModel()
	p, _, _ := testPath(t, m)

	items, err := Preprocess(m, p, []InputItem{{Name: ermname.New("*"), AggFunc: Count, OutputName: "n"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Count, items[0].AggFunc)
	assert.True(t, items[0].Column.Freetext)
	assert.Equal(t, "n", items[0].OutputName)
}

func TestPreprocessUnknownAggFunc(t *testing.T) {
	m := testModel()
	p, _, _ := testPath(t, m)

	_, err := Preprocess(m, p, []InputItem{{Name: ermname.New("name"), AggFunc: AggFunc("median")}})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestPreprocessExplicitAliasOverridesDefaultName(t *testing.T) {
	m := testModel()
	p, _, _ := testPath(t, m)

	items, err := Preprocess(m, p, []InputItem{{Name: ermname.New("name"), OutputName: "n"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n", items[0].OutputName)
}

// TestTailDefaultIgnoresContextShift exercises the path that `ermrest_apis.py`'s
// Entity.GET takes: a $alias context switch back to an earlier path element
// must not change the implicit (no ;projection) row set, which always binds
// to the path's tail entity.
func TestTailDefaultIgnoresContextShift(t *testing.T) {
	m := testModel()
	p, people, dept := testPath(t, m)

	require.NoError(t, p.SetContext("P"))
	require.NotEqual(t, dept, p.CurrentTable())
	assert.Equal(t, people, p.CurrentTable())

	items := TailDefault(p)
	require.Len(t, items, len(dept.ColumnsInOrder()))
	for i, col := range dept.ColumnsInOrder() {
		assert.Equal(t, col.Name, items[i].Column.Name)
		assert.Equal(t, col.Name, items[i].OutputName)
		assert.Equal(t, BasePath, items[i].Base)
		assert.Equal(t, p.TailPosition(), items[i].BoundPos)
	}
}

// TestPreprocessBareWildcardIsContextRelative contrasts TailDefault: a
// literal `*` in a projection list (the Attribute/AttributeGroup/Aggregate
// case) legitimately follows the path's current context, not its tail.
func TestPreprocessBareWildcardIsContextRelative(t *testing.T) {
	m := testModel()
	p, people, _ := testPath(t, m)

	require.NoError(t, p.SetContext("P"))

	items, err := Preprocess(m, p, []InputItem{{Name: ermname.New("*")}})
	require.NoError(t, err)
	require.Len(t, items, len(people.ColumnsInOrder()))
	for i, col := range people.ColumnsInOrder() {
		assert.Equal(t, col.Name, items[i].Column.Name)
	}
}

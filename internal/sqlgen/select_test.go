package sqlgen

import (
	"testing"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/epath"
	"github.com/ermrest-eu/ermrestd/internal/projection"
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

func peopleDept(m *catalog.Model) (people, dept *catalog.Table) {
	schema, _ := m.Schema("public")
	people, _ = schema.Table("people")
	dept, _ = schema.Table("dept")
	return
}

func TestRenderSelectBasic(t *testing.T) {
	m := testModel()
	people, _ := peopleDept(m)
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, ""))

	nameCol, _ := people.Column("name")
	items := []projection.Item{{Column: nameCol, BoundPos: 0, OutputName: "name"}}

	sel, err := RenderSelect(p, items, nil, 100)
	require.NoError(t, err)
	assert.Contains(t, sel.SQL, `SELECT t0."name" AS "name"`)
	assert.Contains(t, sel.SQL, `FROM "public"."people" AS t0`)
	assert.Contains(t, sel.SQL, "LIMIT $1")
	assert.Equal(t, []interface{}{100}, sel.Args)
}

func TestRenderSelectJoin(t *testing.T) {
	m := testModel()
	people, dept := peopleDept(m)
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, ""))
	fk, dir, err := m.DefaultLink(people, dept)
	require.NoError(t, err)
	require.NoError(t, p.AddLink(fk, dir, "", ""))

	deptName, _ := dept.Column("name")
	items := []projection.Item{{Column: deptName, BoundPos: 1, OutputName: "dept_name"}}

	sel, err := RenderSelect(p, items, nil, -1)
	require.NoError(t, err)
	assert.Contains(t, sel.SQL, `JOIN "public"."dept" AS t1 ON t0."dept_id" = t1."id"`)
	assert.NotContains(t, sel.SQL, "LIMIT")
}

func TestRenderSelectFilterAndSort(t *testing.T) {
	m := testModel()
	people, _ := peopleDept(m)
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, ""))

	nameCol, _ := people.Column("name")
	idCol, _ := people.Column("id")
	require.NoError(t, p.AddFilter(epath.FilterLeaf{Predicate: epath.Predicate{
		Column: nameCol, BoundPos: 0, Op: epath.OpEqual, Value: "alice",
	}}))
	require.NoError(t, p.AddSort([]epath.SortKey{{Column: idCol, BoundPos: 0}}))
	require.NoError(t, p.SetPage(false, []epath.PageValue{{Value: "7"}}))

	items := []projection.Item{{Column: nameCol, BoundPos: 0, OutputName: "name"}}
	sel, err := RenderSelect(p, items, nil, 50)
	require.NoError(t, err)
	assert.Contains(t, sel.SQL, `WHERE t0."name" = $1`)
	assert.Contains(t, sel.SQL, `ORDER BY t0."id" ASC`)
	assert.Contains(t, sel.SQL, `t0."id" > $2`)
	assert.Equal(t, []interface{}{"alice", "7", 50}, sel.Args)
}

func TestRenderSelectGroupByAggregate(t *testing.T) {
	m := testModel()
	people, _ := peopleDept(m)
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, ""))

	deptIDCol, _ := people.Column("dept_id")
	idCol, _ := people.Column("id")
	groupKeys := []projection.Item{{Column: deptIDCol, BoundPos: 0, OutputName: "dept_id"}}
	items := []projection.Item{{Column: idCol, BoundPos: 0, OutputName: "cnt", AggFunc: projection.Count}}

	sel, err := RenderSelect(p, items, groupKeys, -1)
	require.NoError(t, err)
	assert.Contains(t, sel.SQL, `SELECT t0."dept_id" AS "dept_id", COUNT(t0."id") AS "cnt"`)
	assert.Contains(t, sel.SQL, `GROUP BY t0."dept_id"`)
}

func TestRenderSelectRejectsEmptyProjection(t *testing.T) {
	m := testModel()
	people, _ := peopleDept(m)
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, ""))

	_, err := RenderSelect(p, nil, nil, -1)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestRenderSelectBeforePageFlipsComparison(t *testing.T) {
	m := testModel()
	people, _ := peopleDept(m)
	p := epath.New(m)
	require.NoError(t, p.SetBaseEntity(people, ""))

	idCol, _ := people.Column("id")
	require.NoError(t, p.AddSort([]epath.SortKey{{Column: idCol, BoundPos: 0, Descending: true}}))
	require.NoError(t, p.SetPage(true, []epath.PageValue{{Value: "42"}}))

	items := []projection.Item{{Column: idCol, BoundPos: 0, OutputName: "id"}}
	sel, err := RenderSelect(p, items, nil, -1)
	require.NoError(t, err)
	assert.Contains(t, sel.SQL, `ORDER BY t0."id" DESC`)
	// descending sort gives "<"; the "before" page flips it to ">".
	assert.Contains(t, sel.SQL, `t0."id" > $1`)
}

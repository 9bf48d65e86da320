package ermname

import (
	"testing"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCtx struct {
	current *catalog.Table
	aliases map[string]*catalog.Table
}

func (f fakeCtx) CurrentTable() *catalog.Table { return f.current }
func (f fakeCtx) AliasTable(alias string) (*catalog.Table, bool) {
	t, ok := f.aliases[alias]
	return t, ok
}

func testModel() *catalog.Model {
	return catalog.NewBuilder(1, 1).
		Table("public", "person", "id", "name").
		Table("public", "pet", "id", "owner_id", "name").
		UniqueKey("public", "person", "id").
		UniqueKey("public", "pet", "id").
		ForeignKey("public", "pet", []string{"owner_id"}, "public", "person", []string{"id"}).
		Build()
}

func TestKindClassification(t *testing.T) {
	assert.Equal(t, Unqualified, New("id").Kind())
	assert.Equal(t, Wildcard, New("*").Kind())
	assert.Equal(t, Qualified, New("p", "id").Kind())
	assert.Equal(t, AliasWildcard, New("p", "*").Kind())
	assert.Equal(t, FullyQualified, New("public", "person", "id").Kind())
}

func TestParse(t *testing.T) {
	n, err := Parse("public:person:id")
	require.NoError(t, err)
	assert.Equal(t, []string{"public", "person", "id"}, n.Parts)

	_, err = Parse("")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestResolveColumnBareOnCurrentTable(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	person, _ := schema.Table("person")
	ctx := fakeCtx{current: person}

	ref, err := ResolveColumn(m, ctx, New("name"))
	require.NoError(t, err)
	assert.True(t, ref.BoundToPath)
	assert.Equal(t, "name", ref.Column.Name)
}

func TestResolveColumnFreetextWildcard(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	person, _ := schema.Table("person")
	ctx := fakeCtx{current: person}

	ref, err := ResolveColumn(m, ctx, New("*"))
	require.NoError(t, err)
	assert.True(t, ref.Column.Freetext)
}

func TestResolveColumnAliasQualified(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	person, _ := schema.Table("person")
	pet, _ := schema.Table("pet")
	ctx := fakeCtx{current: pet, aliases: map[string]*catalog.Table{"P": person}}

	ref, err := ResolveColumn(m, ctx, New("P", "name"))
	require.NoError(t, err)
	assert.Equal(t, "P", ref.BoundAlias)
	assert.Equal(t, "name", ref.Column.Name)
}

func TestResolveColumnAliasQualifiedUnknownColumn(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	person, _ := schema.Table("person")
	pet, _ := schema.Table("pet")
	ctx := fakeCtx{current: pet, aliases: map[string]*catalog.Table{"P": person}}

	_, err := ResolveColumn(m, ctx, New("P", "nosuch"))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ConflictModel))
}

func TestResolveColumnTwoPartModelTable(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	pet, _ := schema.Table("pet")
	ctx := fakeCtx{current: pet}

	ref, err := ResolveColumn(m, ctx, New("person", "name"))
	require.NoError(t, err)
	assert.True(t, ref.ModelOnly)
	assert.Equal(t, "name", ref.Column.Name)
}

func TestResolveColumnFullyQualified(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	pet, _ := schema.Table("pet")
	ctx := fakeCtx{current: pet}

	ref, err := ResolveColumn(m, ctx, New("public", "person", "name"))
	require.NoError(t, err)
	assert.True(t, ref.ModelOnly)
	assert.Equal(t, "name", ref.Column.Name)
}

func TestResolveContext(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	person, _ := schema.Table("person")
	pet, _ := schema.Table("pet")
	ctx := fakeCtx{current: pet, aliases: map[string]*catalog.Table{"P": person}}

	alias, err := ResolveContext(ctx, New("P"))
	require.NoError(t, err)
	assert.Equal(t, "P", alias)

	_, err = ResolveContext(ctx, New("nope"))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadData))

	_, err = ResolveContext(ctx, New("a", "b"))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestResolveTable(t *testing.T) {
	m := testModel()
	tbl, err := ResolveTable(m, New("person"))
	require.NoError(t, err)
	assert.Equal(t, "person", tbl.Name)

	tbl, err = ResolveTable(m, New("public", "pet"))
	require.NoError(t, err)
	assert.Equal(t, "pet", tbl.Name)

	_, err = ResolveTable(m, New("a", "b", "c"))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestResolveLink(t *testing.T) {
	m := testModel()
	schema, _ := m.Schema("public")
	pet, _ := schema.Table("pet")
	ctx := fakeCtx{current: pet}

	fk, dir, err := ResolveLink(m, ctx, New("person"))
	require.NoError(t, err)
	assert.Equal(t, catalog.LeftToRight, dir)
	assert.Equal(t, pet, fk.Table)
}

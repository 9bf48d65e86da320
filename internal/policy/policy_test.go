package policy

import (
	"context"
	"testing"

	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestAllowAllPermitsEverything(t *testing.T) {
	m := catalog.NewBuilder(1, 1).
		Table("public", "people", "id").
		UniqueKey("public", "people", "id").
		Build()
	schema, _ := m.Schema("public")
	table, _ := schema.Table("people")

	var e Enforcer = AllowAll{}
	ctx := context.Background()
	id := identity.AnonymousIdentity()

	assert.NoError(t, e.EnforceOwner(ctx, id, 1))
	assert.NoError(t, e.EnforceRead(ctx, id, table))
	assert.NoError(t, e.EnforceWrite(ctx, id, table))
	assert.NoError(t, e.EnforceSchemaWrite(ctx, id, table))
}

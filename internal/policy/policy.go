// Package policy defines the pluggable authorization hook contract every
// data-path verb calls through before touching the database. The default
// Enforcer allows everything; a deployment wires in its own predicates
// (e.g. backed by database functions reading the session variables
// internal/session sets) without internal/api knowing the difference.
package policy

import (
	"context"

	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/identity"
)

// Enforcer mirrors the original implementation's four distinct enforcement
// call sites rather than one generic "is this allowed" check. internal/api
// calls EnforceRead on a read's tail table and EnforceWrite before entity
// writes and deletes; no handler calls EnforceOwner or EnforceSchemaWrite.
type Enforcer interface {
	EnforceOwner(ctx context.Context, id identity.Identity, catalogID int64) error
	EnforceRead(ctx context.Context, id identity.Identity, table *catalog.Table) error
	EnforceWrite(ctx context.Context, id identity.Identity, table *catalog.Table) error
	EnforceSchemaWrite(ctx context.Context, id identity.Identity, table *catalog.Table) error
}

// AllowAll is the default Enforcer: every call site succeeds unconditionally.
// A deployment replaces this with a predicate-backed implementation once it
// has policy rules to enforce; none are specified here.
type AllowAll struct{}

var _ Enforcer = AllowAll{}

func (AllowAll) EnforceOwner(context.Context, identity.Identity, int64) error              { return nil }
func (AllowAll) EnforceRead(context.Context, identity.Identity, *catalog.Table) error       { return nil }
func (AllowAll) EnforceWrite(context.Context, identity.Identity, *catalog.Table) error      { return nil }
func (AllowAll) EnforceSchemaWrite(context.Context, identity.Identity, *catalog.Table) error { return nil }

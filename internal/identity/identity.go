// Package identity models the authenticated caller of a request: a client
// id plus the attribute list policy predicates and the C6 transaction
// envelope bind as session variables (spec.md §4.6, §7).
package identity

// Anonymous is the identity assigned to a request that carries no
// authentication, matching ermrest's anonymous-client convention.
const Anonymous = "*"

// Identity is the resolved caller of one request. Attributes is the set of
// group/role attributes the caller carries, in no particular order; policy
// predicates treat it as a set, not a list.
type Identity struct {
	ClientID   string
	Attributes []string
}

// IsAnonymous reports whether id carries no authenticated client.
func (id Identity) IsAnonymous() bool {
	return id.ClientID == "" || id.ClientID == Anonymous
}

// HasAttribute reports whether id carries attr among its attributes.
func (id Identity) HasAttribute(attr string) bool {
	for _, a := range id.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// AnonymousIdentity returns the identity assigned to unauthenticated requests.
func AnonymousIdentity() Identity {
	return Identity{ClientID: Anonymous}
}

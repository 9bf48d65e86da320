package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHeaders map[string]string

func (f fakeHeaders) Get(key string, defaultValue ...string) string {
	if v, ok := f[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func TestAnonymousIdentity(t *testing.T) {
	id := AnonymousIdentity()
	assert.True(t, id.IsAnonymous())
	assert.False(t, id.HasAttribute("anything"))
}

func TestHasAttribute(t *testing.T) {
	id := Identity{ClientID: "alice", Attributes: []string{"admin", "curator"}}
	assert.False(t, id.IsAnonymous())
	assert.True(t, id.HasAttribute("admin"))
	assert.False(t, id.HasAttribute("owner"))
}

func TestTrustedHeaderResolverAnonymousWhenMissing(t *testing.T) {
	r := DefaultTrustedHeaderResolver()
	id := r.Resolve(fakeHeaders{})
	assert.True(t, id.IsAnonymous())
}

func TestTrustedHeaderResolverParsesAttributes(t *testing.T) {
	r := DefaultTrustedHeaderResolver()
	id := r.Resolve(fakeHeaders{
		"X-Remote-User":       "alice",
		"X-Remote-Attributes": "admin, curator,ops",
	})
	assert.Equal(t, "alice", id.ClientID)
	assert.Equal(t, []string{"admin", "curator", "ops"}, id.Attributes)
}

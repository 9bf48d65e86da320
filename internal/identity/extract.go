package identity

import "strings"

// HeaderSource is the minimal view of an inbound request this package needs
// to extract identity — satisfied directly by *fiber.Ctx without importing
// fiber here, keeping this package dependency-free.
type HeaderSource interface {
	Get(key string, defaultValue ...string) string
}

// Resolver extracts an Identity from an inbound request. The default
// TrustedHeaderResolver is a stub: a real deployment replaces it with one
// backed by its own authentication (OIDC, SAML, API keys, ...); internal/api
// depends only on this interface.
type Resolver interface {
	Resolve(req HeaderSource) Identity
}

// TrustedHeaderResolver reads client id and attributes from headers set by
// a trusted upstream proxy (the same posture the original implementation
// assumes for its WSGI REMOTE_USER/webauthn environ keys, expressed here as
// ordinary HTTP headers since this gateway owns no auth flow of its own).
type TrustedHeaderResolver struct {
	ClientHeader     string
	AttributesHeader string
}

var _ Resolver = TrustedHeaderResolver{}

// DefaultTrustedHeaderResolver reads the conventional X-Remote-User /
// X-Remote-Attributes header pair.
func DefaultTrustedHeaderResolver() TrustedHeaderResolver {
	return TrustedHeaderResolver{
		ClientHeader:     "X-Remote-User",
		AttributesHeader: "X-Remote-Attributes",
	}
}

// Resolve reads the configured headers, falling back to AnonymousIdentity
// when the client header is absent.
func (r TrustedHeaderResolver) Resolve(req HeaderSource) Identity {
	client := req.Get(r.ClientHeader)
	if client == "" {
		return AnonymousIdentity()
	}

	var attrs []string
	if raw := req.Get(r.AttributesHeader); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			a = strings.TrimSpace(a)
			if a != "" {
				attrs = append(attrs, a)
			}
		}
	}

	return Identity{ClientID: client, Attributes: attrs}
}

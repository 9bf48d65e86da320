// Package session implements C6: ETag computation and RFC 7232 precondition
// evaluation, and the per-request transaction envelope (session-variable
// setup, commit/rollback, bounded retry) that every data-path verb runs
// inside.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ETagInputs names which facets of the request fold into the ETag, per
// spec.md §4.6: the data-version is always present; client identity and the
// Accept header are included only when the response actually varies on them.
type ETagInputs struct {
	DataVersion  int64
	VaryCookie   bool
	ClientID     string
	VaryAccept   bool
	AcceptHeader string
}

// Compute renders a strong, double-quoted ETag from the opaque data-version
// token plus whichever of client identity / Accept header the response
// varies on, joined in a fixed order and omitting any that don't apply.
func Compute(in ETagInputs) string {
	parts := []string{"v=" + strconv.FormatInt(in.DataVersion, 10)}
	if in.VaryCookie {
		parts = append(parts, "c="+in.ClientID)
	}
	if in.VaryAccept {
		parts = append(parts, "a="+in.AcceptHeader)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// VaryHeader renders the Vary header value matching the facets folded into
// the ETag, so caches key correctly on the same dimensions.
func VaryHeader(in ETagInputs) string {
	var vary []string
	if in.VaryCookie {
		vary = append(vary, "Cookie")
	}
	if in.VaryAccept {
		vary = append(vary, "Accept")
	}
	if len(vary) == 0 {
		return ""
	}
	return strings.Join(vary, ", ")
}

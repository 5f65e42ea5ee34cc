// Package orgs provides organization scoping for gateway requests. It
// supports single-org deployments (every request maps to the root org)
// and header-based multi-org deployments.
package orgs

import "context"

// Mode controls how the org is resolved for a request.
type Mode string

const (
	// ModeSingle maps every request to DefaultOrg.
	ModeSingle Mode = "single"
	// ModeHeader requires an org per request via query param or header.
	ModeHeader Mode = "header"
)

// DefaultOrg is the org assigned when a deployment runs single-org or a
// caller supplies no hint.
const DefaultOrg = "root"

// ctxKey is an unexported type used as the context key for OrgContext.
type ctxKey struct{}

// OrgContext carries the resolved org through request context.
type OrgContext struct {
	Org       string
	Principal string
}

// WithOrg returns a new context with the given OrgContext attached.
func WithOrg(ctx context.Context, oc OrgContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, oc)
}

// FromContext retrieves the OrgContext from the context. Returns the zero
// value and false if no org is set.
func FromContext(ctx context.Context) (OrgContext, bool) {
	oc, ok := ctx.Value(ctxKey{}).(OrgContext)
	return oc, ok
}

// OrgFromContext returns the org id from the context, or DefaultOrg if no
// org context is set.
func OrgFromContext(ctx context.Context) string {
	oc, ok := FromContext(ctx)
	if !ok || oc.Org == "" {
		return DefaultOrg
	}
	return oc.Org
}

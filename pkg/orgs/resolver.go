package orgs

import (
	"fmt"
	"net/http"
	"regexp"
)

// maxOrgLen is the maximum length for an org id (DNS label convention).
const maxOrgLen = 63

// orgRe validates org format: lowercase alphanumeric and hyphens, must
// start and end with an alphanumeric character.
var orgRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// OrgQueryParam is the query parameter name used for org resolution.
const OrgQueryParam = "org"

// OrgHeader is the HTTP header used for org resolution.
const OrgHeader = "X-Org"

// Resolver resolves the org context from an HTTP request.
type Resolver interface {
	Resolve(r *http.Request) (OrgContext, error)
}

// SingleResolver always returns DefaultOrg.
type SingleResolver struct{}

// Resolve always returns an OrgContext with Org set to DefaultOrg.
func (SingleResolver) Resolve(_ *http.Request) (OrgContext, error) {
	return OrgContext{Org: DefaultOrg}, nil
}

// HeaderResolver reads the org from the request query parameter or the
// X-Org header, falling back to DefaultOrg when neither is set.
type HeaderResolver struct{}

// Resolve extracts the org from the request. The query parameter takes
// precedence over the header. An absent org resolves to DefaultOrg; an
// invalid one is an error.
func (HeaderResolver) Resolve(r *http.Request) (OrgContext, error) {
	org := r.URL.Query().Get(OrgQueryParam)
	if org == "" {
		org = r.Header.Get(OrgHeader)
	}
	if org == "" {
		return OrgContext{Org: DefaultOrg}, nil
	}

	if err := validateOrg(org); err != nil {
		return OrgContext{}, err
	}
	return OrgContext{Org: org}, nil
}

// validateOrg checks that an org id conforms to DNS label rules:
// lowercase alphanumeric and hyphens, 1-63 characters, starts and ends
// with an alphanumeric character.
func validateOrg(org string) error {
	if len(org) > maxOrgLen {
		return fmt.Errorf("org %q exceeds maximum length of %d characters", org, maxOrgLen)
	}
	if !orgRe.MatchString(org) {
		return fmt.Errorf("org %q is invalid: must consist of lowercase alphanumeric characters or hyphens, and must start and end with an alphanumeric character", org)
	}
	return nil
}

package policy

import (
	"context"
	"fmt"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/registry"
)

// LinkGate allows delivery only to registered agents holding an explicit
// grant on the resource. This is the default production policy.
type LinkGate struct {
	links *LinkStore
	// RequireApproved controls whether the agent must be approved or
	// merely registered. Deployment policy; defaults to true.
	RequireApproved bool
}

// NewLinkGate creates a LinkGate backed by the given link store.
func NewLinkGate(links *LinkStore) *LinkGate {
	return &LinkGate{links: links, RequireApproved: true}
}

// Authorize implements Gate.
func (g *LinkGate) Authorize(ctx context.Context, agent *agents.AgentRecord, resource *registry.ResourceRecord) (Decision, error) {
	if d := checkRegistration(agent, g.RequireApproved); !d.Allowed {
		return d, nil
	}
	ok, err := g.links.HasGrant(agent.ID, resource.ID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Deny(fmt.Sprintf("agent %s has no grant on resource %s", agent.AgentID, resource.Name)), nil
	}
	return Allow, nil
}

// DomainGate partitions agents and resources into named business domains
// ("lines of business") and denies delivery when the two domains differ
// and neither is unscoped. An empty domain on either side is unscoped.
type DomainGate struct {
	RequireApproved bool
}

// NewDomainGate creates a DomainGate.
func NewDomainGate() *DomainGate {
	return &DomainGate{RequireApproved: true}
}

// Authorize implements Gate.
func (g *DomainGate) Authorize(ctx context.Context, agent *agents.AgentRecord, resource *registry.ResourceRecord) (Decision, error) {
	if d := checkRegistration(agent, g.RequireApproved); !d.Allowed {
		return d, nil
	}
	if agent.Domain == "" || resource.Domain == "" {
		return Allow, nil
	}
	if agent.Domain != resource.Domain {
		return Deny(fmt.Sprintf("agent domain %q does not match resource domain %q", agent.Domain, resource.Domain)), nil
	}
	return Allow, nil
}

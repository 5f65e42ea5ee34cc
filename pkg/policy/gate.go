// Package policy decides whether a calling agent may receive a governed
// resource. The decision function is pluggable: deployments choose
// between a link-based gate and a line-of-business domain gate without
// touching the gateway or the ledger.
package policy

import (
	"context"
	"sync"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/registry"
)

// Decision is the result of an authorization check. Reason is set on
// denial and is recorded verbatim in the denial ledger entry.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Gate authorizes or denies a content delivery. agent may be nil when
// the caller could not be resolved; implementations must deny in that
// case rather than panic.
type Gate interface {
	Authorize(ctx context.Context, agent *agents.AgentRecord, resource *registry.ResourceRecord) (Decision, error)
}

// Mode names a gate strategy in configuration.
type Mode string

const (
	// ModeLinks requires a registered agent plus an explicit
	// agent-to-resource grant.
	ModeLinks Mode = "links"
	// ModeDomains partitions agents and resources into business domains
	// and denies cross-domain delivery.
	ModeDomains Mode = "domains"
)

// Switcher is a Gate that delegates to a swappable inner gate. The
// config watcher replaces the inner gate at runtime when the policy mode
// changes.
type Switcher struct {
	mu   sync.RWMutex
	gate Gate
}

// NewSwitcher creates a Switcher with an initial gate.
func NewSwitcher(gate Gate) *Switcher {
	return &Switcher{gate: gate}
}

// Use replaces the active gate.
func (s *Switcher) Use(gate Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = gate
}

// Authorize delegates to the active gate.
func (s *Switcher) Authorize(ctx context.Context, agent *agents.AgentRecord, resource *registry.ResourceRecord) (Decision, error) {
	s.mu.RLock()
	gate := s.gate
	s.mu.RUnlock()
	return gate.Authorize(ctx, agent, resource)
}

// checkRegistration applies the registration preconditions shared by all
// gate strategies. Returns a deny decision, or Allow when the agent
// passes.
func checkRegistration(agent *agents.AgentRecord, requireApproved bool) Decision {
	if agent == nil {
		return Deny("agent is not registered")
	}
	if agent.Status != agents.StatusActive {
		return Deny("agent is inactive")
	}
	if requireApproved && agent.ApprovalStatus != string(agents.ApprovalApproved) {
		return Deny("agent is not approved (status: " + agent.ApprovalStatus + ")")
	}
	return Allow
}

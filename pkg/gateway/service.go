// Package gateway exposes governance operations to external agents as a
// named skill registry reachable over a JSON-RPC surface and a parallel
// MCP tool surface. Every content delivery passes the policy gate and is
// recorded in the ledger before the caller sees a response.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/ledger"
	"github.com/agentplane/govern/pkg/orgs"
	"github.com/agentplane/govern/pkg/policy"
	"github.com/agentplane/govern/pkg/registry"
	"github.com/agentplane/govern/pkg/tasks"
)

// ServerName identifies this gateway in discovery documents.
const ServerName = "govern-gateway"

// Service orchestrates the stores, the policy gate, and the ledger per
// skill invocation. It holds no mutable request state: everything
// durable lives in the relational store, and the cache holds only
// discardable discovery and poll bookkeeping.
type Service struct {
	Resources *registry.Store
	Versions  *registry.VersionStore
	Agents    *agents.Store
	Gate      policy.Gate
	Links     *policy.LinkStore
	Ledger    *ledger.Store
	Cache     *tasks.TTLCache
	Poller    *Poller
	Version   string
	Logger    *slog.Logger

	registry *Registry
}

// NewService wires a Service and registers all skills.
func NewService(s Service) *Service {
	svc := &s
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	if svc.Cache == nil {
		svc.Cache = tasks.NewTTLCache(256, time.Minute)
	}
	if svc.Poller == nil {
		svc.Poller = NewPoller(0, 0, svc.Logger)
	}
	if svc.Version == "" {
		svc.Version = "0.1.0"
	}
	svc.registry = NewRegistry()
	svc.registerReadSkills()
	svc.registerWriteSkills()
	return svc
}

// Skills returns the skill registry.
func (s *Service) Skills() *Registry { return s.registry }

// resolveAgent looks up the calling agent within the request org.
// Returns a typed AgentNotRegistered error when absent.
func (s *Service) resolveAgent(ctx context.Context, agentID string) (*agents.AgentRecord, error) {
	if agentID == "" {
		agentID = CallerFromContext(ctx).Principal
	}
	record, err := s.Agents.GetByAgentID(orgs.OrgFromContext(ctx), agentID)
	if err != nil {
		var notFound *agents.NotFoundError
		if errors.As(err, &notFound) {
			return nil, NewError(KindAgentNotRegistered, "agent %q is not registered", agentID)
		}
		return nil, err
	}
	return record, nil
}

// contextDelivery is the result of a governed context delivery.
type contextDelivery struct {
	Name        string `json:"name"`
	ResourceID  string `json:"resource_id"`
	Version     int    `json:"version"`
	VersionID   string `json:"version_id"`
	ContentHash string `json:"content_hash"`
	Format      string `json:"format"`
	Content     string `json:"content"`
}

// deliverContext is the single authorized path for handing a context to
// an agent: resolve the caller, consult the policy gate, render the
// current approved version, and write exactly one ledger entry. A denial
// writes exactly one denial entry and fails with PolicyViolation. A
// failed ledger write fails the delivery.
func (s *Service) deliverContext(ctx context.Context, name, sourceAgent, intent, format string) (*contextDelivery, error) {
	caller := CallerFromContext(ctx)
	org := orgs.OrgFromContext(ctx)

	resource, err := s.Resources.GetResourceByName(registry.KindContext, name)
	if err != nil {
		return nil, err
	}

	agent, err := s.resolveAgent(ctx, sourceAgent)
	if err != nil {
		return nil, err
	}

	decision, err := s.Gate.Authorize(ctx, agent, resource)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		if err := s.Ledger.RecordDenial(ctx, agent.AgentID, org, caller.TraceID, resource.ID, resource.Name, decision.Reason); err != nil {
			return nil, err
		}
		return nil, NewError(KindPolicyViolation, "%s", decision.Reason)
	}

	version, err := s.Versions.GetCurrent(resource.ID)
	if err != nil {
		return nil, err
	}

	if format == "" {
		format = FormatJSON
	}
	rendered, err := RenderContext(version.Content, format)
	if err != nil {
		return nil, err
	}

	if err := s.Ledger.RecordDelivery(ctx, agent.AgentID, org, caller.TraceID, resource.ID, resource.Name, version.ID, version.ContentHash, intent); err != nil {
		return nil, err
	}

	return &contextDelivery{
		Name:        resource.Name,
		ResourceID:  resource.ID,
		Version:     version.Version,
		VersionID:   version.ID,
		ContentHash: version.ContentHash,
		Format:      format,
		Content:     rendered,
	}, nil
}

// promptDelivery is the result of a prompt retrieval.
type promptDelivery struct {
	Name         string   `json:"name"`
	ResourceID   string   `json:"resource_id"`
	Version      int      `json:"version"`
	VersionID    string   `json:"version_id"`
	ContentHash  string   `json:"content_hash"`
	Content      string   `json:"content"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	ModelHint    string   `json:"model_hint,omitempty"`
	Placeholders []string `json:"placeholders,omitempty"`
}

// deliverPrompt interpolates the current approved prompt version and
// writes a usage entry.
func (s *Service) deliverPrompt(ctx context.Context, name string, variables map[string]string, sourceAgent, intent string) (*promptDelivery, error) {
	caller := CallerFromContext(ctx)
	org := orgs.OrgFromContext(ctx)

	resource, err := s.Resources.GetResourceByName(registry.KindPrompt, name)
	if err != nil {
		return nil, err
	}
	version, err := s.Versions.GetCurrent(resource.ID)
	if err != nil {
		return nil, err
	}

	agentID := sourceAgent
	if agentID == "" {
		agentID = caller.Principal
	}
	if err := s.Ledger.RecordPromptUsage(ctx, agentID, org, caller.TraceID, resource.ID, version.ID, version.ContentHash, intent); err != nil {
		return nil, err
	}

	return &promptDelivery{
		Name:         resource.Name,
		ResourceID:   resource.ID,
		Version:      version.Version,
		VersionID:    version.ID,
		ContentHash:  version.ContentHash,
		Content:      Interpolate(version.Content, variables),
		SystemPrompt: version.SystemPrompt,
		ModelHint:    version.ModelHint,
		Placeholders: PlaceholderNames(version.Content),
	}, nil
}

// invoke dispatches a skill and records the protocol call in the ledger
// before returning. The ledger write is mandatory: if it fails, a
// successful skill result is discarded and the call fails.
func (s *Service) invoke(ctx context.Context, name string, params []byte) (any, *Error) {
	caller := CallerFromContext(ctx)
	org := orgs.OrgFromContext(ctx)

	result, err := s.registry.Dispatch(ctx, name, params)

	var gwErr *Error
	resultSummary := "ok"
	callError := ""
	if err != nil {
		gwErr = asGatewayError(err)
		if gwErr.Kind == KindInternal {
			s.Logger.Error("skill failed", "skill", name, "error", err)
		}
		resultSummary = string(gwErr.Kind)
		callError = gwErr.Reason
	}

	if recErr := s.Ledger.RecordProtocolCall(ctx, caller.Principal, org, caller.TraceID,
		name, summarize(params), resultSummary, callError, nil); recErr != nil {
		s.Logger.Error("protocol call ledger write failed", "skill", name, "error", recErr)
		return nil, NewError(KindInternal, "audit record could not be written")
	}

	if gwErr != nil {
		return nil, gwErr
	}
	return result, nil
}

// summarize truncates raw skill input for the ledger's input summary.
func summarize(params []byte) string {
	const maxLen = 256
	if len(params) > maxLen {
		return string(params[:maxLen]) + "..."
	}
	return string(params)
}

package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/ledger"
	"github.com/agentplane/govern/pkg/orgs"
	"github.com/agentplane/govern/pkg/registry"
)

type getPromptInput struct {
	Name        string            `json:"name"`
	Variables   map[string]string `json:"variables,omitempty"`
	SourceAgent string            `json:"sourceAgent,omitempty"`
	Intent      string            `json:"intent,omitempty"`
}

type getContextInput struct {
	Name        string `json:"name"`
	SourceAgent string `json:"sourceAgent"`
	Intent      string `json:"intent,omitempty"`
	Format      string `json:"format,omitempty"`
}

type listPromptsInput struct {
	Tag       string `json:"tag,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type listContextsInput struct {
	Tag         string `json:"tag,omitempty"`
	Environment string `json:"environment,omitempty"`
	ActiveOnly  bool   `json:"activeOnly,omitempty"`
	PageSize    int    `json:"pageSize,omitempty"`
	PageToken   string `json:"pageToken,omitempty"`
}

type composeContextsInput struct {
	Names       []string `json:"names"`
	SourceAgent string   `json:"sourceAgent"`
	Intent      string   `json:"intent,omitempty"`
}

type validateContextInput struct {
	Name        string `json:"name"`
	SourceAgent string `json:"sourceAgent,omitempty"`
	Intent      string `json:"intent,omitempty"`
}

type getApprovedContextInput struct {
	Name        string `json:"name"`
	SourceAgent string `json:"sourceAgent"`
	Intent      string `json:"intent,omitempty"`
	Format      string `json:"format,omitempty"`
}

type validateAgentInput struct {
	AgentID     string `json:"agentId,omitempty"`
	EndpointURL string `json:"endpointUrl,omitempty"`
}

type getLineageInput struct {
	Limit int `json:"limit,omitempty"`
}

type auditLogInput struct {
	EventType   string         `json:"eventType"`
	ResourceRef string         `json:"resourceRef,omitempty"`
	SourceAgent string         `json:"sourceAgent,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

type reportIncidentInput struct {
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	ResourceRef string         `json:"resourceRef,omitempty"`
	SourceAgent string         `json:"sourceAgent,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

type pollAgentInput struct {
	AgentID   string `json:"agentId,omitempty"`
	MCPURL    string `json:"mcpUrl,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// resourceSummary is one entry in a catalog listing.
type resourceSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Active      bool     `json:"active"`
}

func toSummary(r registry.ResourceRecord) resourceSummary {
	return resourceSummary{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags,
		Domain:      r.Domain,
		Active:      r.CurrentVersionID != nil,
	}
}

func (s *Service) registerReadSkills() {
	s.registry.Register(NewSkill("get_prompt",
		"Retrieve the current approved version of a prompt, interpolating {{var}} placeholders.",
		objectSchema([]string{"name"}, map[string]any{
			"name":        map[string]any{"type": "string"},
			"variables":   map[string]any{"type": "object"},
			"sourceAgent": map[string]any{"type": "string"},
			"intent":      map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in getPromptInput) (any, error) {
			if in.Name == "" {
				return nil, NewError(KindInvalidInput, "name is required")
			}
			return s.deliverPrompt(ctx, in.Name, in.Variables, in.SourceAgent, in.Intent)
		}))

	s.registry.Register(NewSkill("get_context",
		"Retrieve the current approved version of a context, subject to the policy gate.",
		objectSchema([]string{"name", "sourceAgent"}, map[string]any{
			"name":        map[string]any{"type": "string"},
			"sourceAgent": map[string]any{"type": "string"},
			"intent":      map[string]any{"type": "string"},
			"format":      map[string]any{"type": "string", "enum": []string{FormatJSON, FormatYAML, FormatText}},
		}),
		func(ctx context.Context, in getContextInput) (any, error) {
			if in.Name == "" || in.SourceAgent == "" {
				return nil, NewError(KindInvalidInput, "name and sourceAgent are required")
			}
			return s.deliverContext(ctx, in.Name, in.SourceAgent, in.Intent, in.Format)
		}))

	s.registry.Register(NewSkill("list_prompts",
		"List prompt resources, optionally filtered by tag.",
		objectSchema(nil, map[string]any{
			"tag":       map[string]any{"type": "string"},
			"pageSize":  map[string]any{"type": "integer"},
			"pageToken": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in listPromptsInput) (any, error) {
			return s.listResources(registry.KindPrompt, in.Tag, false, in.PageSize, in.PageToken)
		}))

	s.registry.Register(NewSkill("list_contexts",
		"List context resources, optionally filtered by tag or environment, or restricted to resources with an approved version.",
		objectSchema(nil, map[string]any{
			"tag":         map[string]any{"type": "string"},
			"environment": map[string]any{"type": "string"},
			"activeOnly":  map[string]any{"type": "boolean"},
			"pageSize":    map[string]any{"type": "integer"},
			"pageToken":   map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in listContextsInput) (any, error) {
			// Environments are modeled as tags on the resource.
			tag := in.Tag
			if tag == "" {
				tag = in.Environment
			}
			return s.listResources(registry.KindContext, tag, in.ActiveOnly, in.PageSize, in.PageToken)
		}))

	s.registry.Register(NewSkill("compose_contexts",
		"Merge multiple approved contexts; later entries override same-key fields from earlier ones.",
		objectSchema([]string{"names", "sourceAgent"}, map[string]any{
			"names":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"sourceAgent": map[string]any{"type": "string"},
			"intent":      map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in composeContextsInput) (any, error) {
			return s.composeContexts(ctx, in)
		}))

	s.registry.Register(NewSkill("validate_context",
		"Report a context's approval, integrity, and pending-proposal state without delivering content.",
		objectSchema([]string{"name"}, map[string]any{
			"name":        map[string]any{"type": "string"},
			"sourceAgent": map[string]any{"type": "string"},
			"intent":      map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in validateContextInput) (any, error) {
			if in.Name == "" {
				return nil, NewError(KindInvalidInput, "name is required")
			}
			return s.validateContext(in.Name)
		}))

	s.registry.Register(NewSkill("get_approved_context",
		"Retrieve a context like get_context, additionally reporting unresolved pending proposals.",
		objectSchema([]string{"name", "sourceAgent"}, map[string]any{
			"name":        map[string]any{"type": "string"},
			"sourceAgent": map[string]any{"type": "string"},
			"intent":      map[string]any{"type": "string"},
			"format":      map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in getApprovedContextInput) (any, error) {
			if in.Name == "" || in.SourceAgent == "" {
				return nil, NewError(KindInvalidInput, "name and sourceAgent are required")
			}
			delivery, err := s.deliverContext(ctx, in.Name, in.SourceAgent, in.Intent, in.Format)
			if err != nil {
				return nil, err
			}
			pending, err := s.Versions.CountPendingProposals(delivery.ResourceID)
			if err != nil {
				return nil, err
			}
			return struct {
				*contextDelivery
				PendingProposals int `json:"pending_proposals"`
			}{delivery, pending}, nil
		}))

	s.registry.Register(NewSkill("validate_agent",
		"Report an agent's registration and approval status. No side effects.",
		objectSchema(nil, map[string]any{
			"agentId":     map[string]any{"type": "string"},
			"endpointUrl": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in validateAgentInput) (any, error) {
			return s.validateAgent(ctx, in)
		}))

	s.registry.Register(NewSkill("get_lineage",
		"Read the most recent delivery lineage entries.",
		objectSchema(nil, map[string]any{
			"limit": map[string]any{"type": "integer"},
		}),
		func(ctx context.Context, in getLineageInput) (any, error) {
			events, err := s.Ledger.GetLineage(ctx, in.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"events": toEventViews(events)}, nil
		}))

	s.registry.Register(NewSkill("audit_log",
		"Write a generic compliance event to the ledger.",
		objectSchema([]string{"eventType"}, map[string]any{
			"eventType":   map[string]any{"type": "string"},
			"resourceRef": map[string]any{"type": "string"},
			"sourceAgent": map[string]any{"type": "string"},
			"details":     map[string]any{"type": "object"},
		}),
		func(ctx context.Context, in auditLogInput) (any, error) {
			return s.auditLog(ctx, in)
		}))

	s.registry.Register(NewSkill("report_incident",
		"Record a governance incident against a resource or agent.",
		objectSchema([]string{"severity", "description"}, map[string]any{
			"severity":    map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"resourceRef": map[string]any{"type": "string"},
			"sourceAgent": map[string]any{"type": "string"},
			"details":     map[string]any{"type": "object"},
		}),
		func(ctx context.Context, in reportIncidentInput) (any, error) {
			return s.reportIncident(ctx, in)
		}))

	s.registry.Register(NewSkill("mcp_poll_agent",
		"Poll a remote agent's MCP endpoint for its tool listing, with a bounded timeout.",
		objectSchema(nil, map[string]any{
			"agentId":   map[string]any{"type": "string"},
			"mcpUrl":    map[string]any{"type": "string"},
			"timeoutMs": map[string]any{"type": "integer"},
		}),
		func(ctx context.Context, in pollAgentInput) (any, error) {
			return s.pollAgent(ctx, in)
		}))
}

func (s *Service) listResources(kind registry.ResourceKind, tag string, activeOnly bool, pageSize int, pageToken string) (any, error) {
	items, next, err := s.Resources.ListResources(kind, tag, pageSize, pageToken)
	if err != nil {
		return nil, err
	}
	summaries := make([]resourceSummary, 0, len(items))
	for _, item := range items {
		if activeOnly && item.CurrentVersionID == nil {
			continue
		}
		summaries = append(summaries, toSummary(item))
	}
	return map[string]any{"items": summaries, "nextPageToken": next}, nil
}

func (s *Service) composeContexts(ctx context.Context, in composeContextsInput) (any, error) {
	if len(in.Names) == 0 || in.SourceAgent == "" {
		return nil, NewError(KindInvalidInput, "names and sourceAgent are required")
	}

	caller := CallerFromContext(ctx)
	org := orgs.OrgFromContext(ctx)

	agent, err := s.resolveAgent(ctx, in.SourceAgent)
	if err != nil {
		return nil, err
	}

	type constituent struct {
		Name        string `json:"name"`
		Version     int    `json:"version"`
		VersionID   string `json:"version_id"`
		ContentHash string `json:"content_hash"`
	}

	payloads := make([]string, 0, len(in.Names))
	parts := make([]constituent, 0, len(in.Names))
	for _, name := range in.Names {
		resource, err := s.Resources.GetResourceByName(registry.KindContext, name)
		if err != nil {
			return nil, err
		}
		decision, err := s.Gate.Authorize(ctx, agent, resource)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			if recErr := s.Ledger.RecordDenial(ctx, agent.AgentID, org, caller.TraceID, resource.ID, resource.Name, decision.Reason); recErr != nil {
				return nil, recErr
			}
			return nil, NewError(KindPolicyViolation, "%s", decision.Reason)
		}
		version, err := s.Versions.GetCurrent(resource.ID)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, version.Content)
		parts = append(parts, constituent{
			Name:        resource.Name,
			Version:     version.Version,
			VersionID:   version.ID,
			ContentHash: version.ContentHash,
		})
	}

	merged, err := MergeContexts(payloads)
	if err != nil {
		return nil, err
	}

	// One delivery entry per constituent context.
	for _, part := range parts {
		resource, err := s.Resources.GetResourceByName(registry.KindContext, part.Name)
		if err != nil {
			return nil, err
		}
		if err := s.Ledger.RecordDelivery(ctx, agent.AgentID, org, caller.TraceID, resource.ID, resource.Name, part.VersionID, part.ContentHash, in.Intent); err != nil {
			return nil, err
		}
	}

	return map[string]any{"merged": merged, "constituents": parts}, nil
}

func (s *Service) validateContext(name string) (any, error) {
	report := map[string]any{"name": name, "exists": false, "has_approved_version": false}

	resource, err := s.Resources.GetResourceByName(registry.KindContext, name)
	if err != nil {
		var notFound *registry.NotFoundError
		if errors.As(err, &notFound) {
			return report, nil
		}
		return nil, err
	}
	report["exists"] = true
	report["resource_id"] = resource.ID

	pending, err := s.Versions.CountPendingProposals(resource.ID)
	if err != nil {
		return nil, err
	}
	report["pending_proposals"] = pending

	version, err := s.Versions.GetCurrent(resource.ID)
	if err != nil {
		var notFound *registry.NotFoundError
		if errors.As(err, &notFound) {
			return report, nil
		}
		return nil, err
	}
	report["has_approved_version"] = true
	report["current_version"] = version.Version
	report["current_version_id"] = version.ID
	report["content_hash"] = version.ContentHash

	if _, err := s.Versions.VerifyIntegrity(version.ID); err != nil {
		var integrity *registry.IntegrityError
		if errors.As(err, &integrity) {
			report["integrity_ok"] = false
			report["integrity_detail"] = integrity.Detail
			return report, nil
		}
		return nil, err
	}
	report["integrity_ok"] = true
	return report, nil
}

func (s *Service) validateAgent(ctx context.Context, in validateAgentInput) (any, error) {
	if in.AgentID == "" && in.EndpointURL == "" {
		return nil, NewError(KindInvalidInput, "agentId or endpointUrl is required")
	}

	var record *agents.AgentRecord
	var err error
	if in.AgentID != "" {
		record, err = s.Agents.GetByAgentID(orgs.OrgFromContext(ctx), in.AgentID)
	} else {
		record, err = s.Agents.GetByEndpoint(in.EndpointURL)
	}
	if err != nil {
		var notFound *agents.NotFoundError
		if errors.As(err, &notFound) {
			return map[string]any{"registered": false}, nil
		}
		return nil, err
	}

	return map[string]any{
		"registered":      true,
		"agent_id":        record.AgentID,
		"org_id":          record.OrgID,
		"status":          record.Status,
		"approval_status": record.ApprovalStatus,
		"owner_team":      record.OwnerTeam,
		"domain":          record.Domain,
	}, nil
}

func (s *Service) auditLog(ctx context.Context, in auditLogInput) (any, error) {
	if in.EventType == "" {
		return nil, NewError(KindInvalidInput, "eventType is required")
	}

	caller := CallerFromContext(ctx)
	agentID := in.SourceAgent
	if agentID == "" {
		agentID = caller.Principal
	}

	event := &ledger.EventRecord{
		AgentID:      agentID,
		OrgID:        orgs.OrgFromContext(ctx),
		TraceID:      caller.TraceID,
		ActionType:   in.EventType,
		ResourceName: in.ResourceRef,
		Metadata:     in.Details,
	}
	if err := s.Ledger.Append(ctx, event); err != nil {
		return nil, err
	}
	return map[string]any{"event_id": event.ID}, nil
}

func (s *Service) reportIncident(ctx context.Context, in reportIncidentInput) (any, error) {
	if in.Severity == "" || in.Description == "" {
		return nil, NewError(KindInvalidInput, "severity and description are required")
	}

	caller := CallerFromContext(ctx)
	agentID := in.SourceAgent
	if agentID == "" {
		agentID = caller.Principal
	}

	metadata := map[string]any{"severity": in.Severity}
	for k, v := range in.Details {
		metadata[k] = v
	}

	event := &ledger.EventRecord{
		AgentID:      agentID,
		OrgID:        orgs.OrgFromContext(ctx),
		TraceID:      caller.TraceID,
		ActionType:   string(ledger.ActionIncident),
		ResourceName: in.ResourceRef,
		Reason:       in.Description,
		Metadata:     metadata,
	}
	if err := s.Ledger.Append(ctx, event); err != nil {
		return nil, err
	}
	return map[string]any{"event_id": event.ID}, nil
}

// pollCacheTTL bounds reuse of a successful poll result.
const pollCacheTTL = 30 * time.Second

func (s *Service) pollAgent(ctx context.Context, in pollAgentInput) (any, error) {
	url := in.MCPURL
	if url == "" {
		if in.AgentID == "" {
			return nil, NewError(KindInvalidInput, "agentId or mcpUrl is required")
		}
		record, err := s.resolveAgent(ctx, in.AgentID)
		if err != nil {
			return nil, err
		}
		url = record.EndpointURL
		if url == "" {
			return nil, NewError(KindInvalidInput, "agent %q has no endpoint url", in.AgentID)
		}
	}

	cacheKey := "poll:" + url
	if cached, ok := s.Cache.Get(cacheKey); ok {
		if result, ok := cached.(PollResult); ok && result.Error == "" {
			result.Fresh = false
			return result, nil
		}
	}

	result := s.Poller.Poll(ctx, url, time.Duration(in.TimeoutMs)*time.Millisecond)
	if result.Error == "" {
		// Poll results go stale fast; a short lifetime bounds how long a
		// remote's health can be misreported.
		s.Cache.SetWithTTL(cacheKey, result, pollCacheTTL)
	}
	return result, nil
}

// eventView is the caller-facing projection of a ledger row.
type eventView struct {
	ID           uint64 `json:"id"`
	AgentID      string `json:"agent_id,omitempty"`
	OrgID        string `json:"org_id,omitempty"`
	TraceID      string `json:"trace_id,omitempty"`
	ActionType   string `json:"action_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`
	VersionID    string `json:"version_id,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`
	Intent       string `json:"intent,omitempty"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toEventViews(events []ledger.EventRecord) []eventView {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:           e.ID,
			AgentID:      e.AgentID,
			OrgID:        e.OrgID,
			TraceID:      e.TraceID,
			ActionType:   e.ActionType,
			ResourceID:   e.ResourceID,
			ResourceName: e.ResourceName,
			VersionID:    e.VersionID,
			ContentHash:  e.ContentHash,
			Intent:       e.Intent,
			Reason:       e.Reason,
			CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return views
}

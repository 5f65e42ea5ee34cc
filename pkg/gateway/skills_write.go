package gateway

import (
	"context"
	"time"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/orgs"
	"github.com/agentplane/govern/pkg/registry"
)

type createResourceInput struct {
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Domain      string   `json:"domain,omitempty"`
}

type proposeVersionInput struct {
	ResourceID    string `json:"resourceId,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Name          string `json:"name,omitempty"`
	Content       string `json:"content"`
	SystemPrompt  string `json:"systemPrompt,omitempty"`
	ModelHint     string `json:"modelHint,omitempty"`
	CommitMessage string `json:"commitMessage,omitempty"`
	AutoApprove   bool   `json:"autoApprove,omitempty"`
}

type versionActionInput struct {
	VersionID string `json:"versionId"`
}

type registerInput struct {
	agents.Manifest
	Org string `json:"org,omitempty"`
}

type agentActionInput struct {
	AgentID string `json:"agentId"`
}

type accessInput struct {
	AgentID string `json:"agentId"`
	Kind    string `json:"kind,omitempty"`
	Name    string `json:"name"`
}

type listVersionsInput struct {
	ResourceID string `json:"resourceId,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Name       string `json:"name,omitempty"`
	PageSize   int    `json:"pageSize,omitempty"`
	PageToken  string `json:"pageToken,omitempty"`
}

// versionView is the caller-facing projection of a version record.
type versionView struct {
	ID              string `json:"id"`
	ResourceID      string `json:"resource_id"`
	Version         int    `json:"version"`
	Status          string `json:"status"`
	ContentHash     string `json:"content_hash"`
	ParentVersionID string `json:"parent_version_id,omitempty"`
	CommitMessage   string `json:"commit_message,omitempty"`
	CreatedBy       string `json:"created_by"`
	CreatedAt       string `json:"created_at"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	RejectedBy      string `json:"rejected_by,omitempty"`
}

func toVersionView(v *registry.VersionRecord) versionView {
	view := versionView{
		ID:              v.ID,
		ResourceID:      v.ResourceID,
		Version:         v.Version,
		Status:          v.Status,
		ContentHash:     v.ContentHash,
		ParentVersionID: v.ParentVersionID,
		CommitMessage:   v.CommitMessage,
		CreatedBy:       v.CreatedBy,
		CreatedAt:       v.CreatedAt.UTC().Format(time.RFC3339),
		ApprovedBy:      v.ApprovedBy,
		RejectedBy:      v.RejectedBy,
	}
	if v.ApprovedAt != nil {
		view.ApprovedAt = v.ApprovedAt.UTC().Format(time.RFC3339)
	}
	return view
}

func parseKind(kind string) (registry.ResourceKind, error) {
	switch registry.ResourceKind(kind) {
	case registry.KindPrompt:
		return registry.KindPrompt, nil
	case registry.KindContext, "":
		return registry.KindContext, nil
	default:
		return "", NewError(KindInvalidInput, "kind must be %q or %q", registry.KindPrompt, registry.KindContext)
	}
}

func (s *Service) registerWriteSkills() {
	s.registry.Register(NewSkill("create_resource",
		"Create a named prompt or context resource with no versions yet.",
		objectSchema([]string{"kind", "name"}, map[string]any{
			"kind":        map[string]any{"type": "string", "enum": []string{string(registry.KindPrompt), string(registry.KindContext)}},
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"domain":      map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in createResourceInput) (any, error) {
			if in.Name == "" || in.Kind == "" {
				return nil, NewError(KindInvalidInput, "kind and name are required")
			}
			kind, err := parseKind(in.Kind)
			if err != nil {
				return nil, err
			}
			resource, err := s.Resources.CreateResource(kind, in.Name, in.Description, in.Tags, in.Domain, CallerFromContext(ctx).Principal)
			if err != nil {
				return nil, err
			}
			return toSummary(*resource), nil
		}))

	s.registry.Register(NewSkill("propose_version",
		"Propose a new version of a resource; the content hash is computed at creation.",
		objectSchema([]string{"content"}, map[string]any{
			"resourceId":    map[string]any{"type": "string"},
			"kind":          map[string]any{"type": "string"},
			"name":          map[string]any{"type": "string"},
			"content":       map[string]any{"type": "string"},
			"systemPrompt":  map[string]any{"type": "string"},
			"modelHint":     map[string]any{"type": "string"},
			"commitMessage": map[string]any{"type": "string"},
			"autoApprove":   map[string]any{"type": "boolean"},
		}),
		func(ctx context.Context, in proposeVersionInput) (any, error) {
			if in.Content == "" {
				return nil, NewError(KindInvalidInput, "content is required")
			}
			resourceID, err := s.resolveResourceID(in.ResourceID, in.Kind, in.Name)
			if err != nil {
				return nil, err
			}
			version, err := s.Versions.ProposeVersion(registry.ProposeInput{
				ResourceID:    resourceID,
				Content:       in.Content,
				SystemPrompt:  in.SystemPrompt,
				ModelHint:     in.ModelHint,
				CommitMessage: in.CommitMessage,
				CreatedBy:     CallerFromContext(ctx).Principal,
				AutoApprove:   in.AutoApprove,
			})
			if err != nil {
				return nil, err
			}
			if in.AutoApprove {
				// The implicit approval gets its own ledger entry so
				// lineage queries can tell auto-approved versions from
				// reviewed ones.
				caller := CallerFromContext(ctx)
				if recErr := s.Ledger.RecordProtocolCall(ctx, caller.Principal, orgs.OrgFromContext(ctx), caller.TraceID,
					"approve_version", `{"versionId":"`+version.ID+`"}`, "ok", "",
					map[string]any{"implicit": true, "resourceId": resourceID, "versionId": version.ID}); recErr != nil {
					return nil, NewError(KindInternal, "audit record could not be written")
				}
			}
			return toVersionView(version), nil
		}))

	s.registry.Register(NewSkill("approve_version",
		"Approve a proposed version and repoint the resource's current version.",
		objectSchema([]string{"versionId"}, map[string]any{
			"versionId": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in versionActionInput) (any, error) {
			if in.VersionID == "" {
				return nil, NewError(KindInvalidInput, "versionId is required")
			}
			version, err := s.Versions.Approve(in.VersionID, CallerFromContext(ctx).Principal)
			if err != nil {
				return nil, err
			}
			return toVersionView(version), nil
		}))

	s.registry.Register(NewSkill("reject_version",
		"Reject a proposed version. The resource's current version is unchanged.",
		objectSchema([]string{"versionId"}, map[string]any{
			"versionId": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in versionActionInput) (any, error) {
			if in.VersionID == "" {
				return nil, NewError(KindInvalidInput, "versionId is required")
			}
			version, err := s.Versions.Reject(in.VersionID, CallerFromContext(ctx).Principal)
			if err != nil {
				return nil, err
			}
			return toVersionView(version), nil
		}))

	s.registry.Register(NewSkill("archive_version",
		"Archive a version; an archived current version falls back to the newest remaining approved version.",
		objectSchema([]string{"versionId"}, map[string]any{
			"versionId": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in versionActionInput) (any, error) {
			if in.VersionID == "" {
				return nil, NewError(KindInvalidInput, "versionId is required")
			}
			version, err := s.Versions.Archive(in.VersionID, CallerFromContext(ctx).Principal)
			if err != nil {
				return nil, err
			}
			return toVersionView(version), nil
		}))

	s.registry.Register(NewSkill("verify_integrity",
		"Recompute a version's content hash and compare it to the stored value.",
		objectSchema([]string{"versionId"}, map[string]any{
			"versionId": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in versionActionInput) (any, error) {
			if in.VersionID == "" {
				return nil, NewError(KindInvalidInput, "versionId is required")
			}
			version, err := s.Versions.VerifyIntegrity(in.VersionID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"version_id":   version.ID,
				"content_hash": version.ContentHash,
				"valid":        true,
			}, nil
		}))

	s.registry.Register(NewSkill("list_versions",
		"List a resource's version history, newest first.",
		objectSchema(nil, map[string]any{
			"resourceId": map[string]any{"type": "string"},
			"kind":       map[string]any{"type": "string"},
			"name":       map[string]any{"type": "string"},
			"pageSize":   map[string]any{"type": "integer"},
			"pageToken":  map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in listVersionsInput) (any, error) {
			resourceID, err := s.resolveResourceID(in.ResourceID, in.Kind, in.Name)
			if err != nil {
				return nil, err
			}
			items, next, err := s.Versions.ListVersions(resourceID, in.PageSize, in.PageToken)
			if err != nil {
				return nil, err
			}
			views := make([]versionView, 0, len(items))
			for i := range items {
				views = append(views, toVersionView(&items[i]))
			}
			return map[string]any{"items": views, "nextPageToken": next}, nil
		}))

	s.registry.Register(NewSkill("register",
		"Register or update an agent by manifest. Repeat registration never resets approval.",
		objectSchema([]string{"agent_id", "version", "owner_team", "url"}, map[string]any{
			"agent_id":            map[string]any{"type": "string"},
			"version":             map[string]any{"type": "string"},
			"owner_team":          map[string]any{"type": "string"},
			"url":                 map[string]any{"type": "string"},
			"name":                map[string]any{"type": "string"},
			"description":         map[string]any{"type": "string"},
			"domain":              map[string]any{"type": "string"},
			"tools_used":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"allowed_data_scopes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"pii_handling":        map[string]any{"type": "boolean"},
			"regulatory_scope":    map[string]any{"type": "string"},
			"org":                 map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in registerInput) (any, error) {
			org := in.Org
			if org == "" {
				if oc, ok := orgs.FromContext(ctx); ok {
					org = oc.Org
				}
			}
			record, created, err := s.Agents.RegisterByManifest(&in.Manifest, org)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"id":              record.ID,
				"agent_id":        record.AgentID,
				"org_id":          record.OrgID,
				"approval_status": record.ApprovalStatus,
				"created":         created,
			}, nil
		}))

	s.registry.Register(NewSkill("approve_agent",
		"Approve a pending agent registration.",
		objectSchema([]string{"agentId"}, map[string]any{
			"agentId": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in agentActionInput) (any, error) {
			return s.resolveAgentAction(ctx, in.AgentID, s.Agents.Approve)
		}))

	s.registry.Register(NewSkill("reject_agent",
		"Reject a pending agent registration.",
		objectSchema([]string{"agentId"}, map[string]any{
			"agentId": map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in agentActionInput) (any, error) {
			return s.resolveAgentAction(ctx, in.AgentID, s.Agents.Reject)
		}))

	s.registry.Register(NewSkill("grant_access",
		"Grant an agent access to a resource for the link-based policy.",
		objectSchema([]string{"agentId", "name"}, map[string]any{
			"agentId": map[string]any{"type": "string"},
			"kind":    map[string]any{"type": "string"},
			"name":    map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in accessInput) (any, error) {
			agent, resource, err := s.resolveAccessPair(ctx, in)
			if err != nil {
				return nil, err
			}
			if err := s.Links.Grant(agent.ID, resource.ID, CallerFromContext(ctx).Principal); err != nil {
				return nil, err
			}
			return map[string]any{"granted": true, "agent_id": agent.AgentID, "resource": resource.Name}, nil
		}))

	s.registry.Register(NewSkill("revoke_access",
		"Revoke an agent's grant on a resource.",
		objectSchema([]string{"agentId", "name"}, map[string]any{
			"agentId": map[string]any{"type": "string"},
			"kind":    map[string]any{"type": "string"},
			"name":    map[string]any{"type": "string"},
		}),
		func(ctx context.Context, in accessInput) (any, error) {
			agent, resource, err := s.resolveAccessPair(ctx, in)
			if err != nil {
				return nil, err
			}
			if err := s.Links.Revoke(agent.ID, resource.ID); err != nil {
				return nil, err
			}
			return map[string]any{"granted": false, "agent_id": agent.AgentID, "resource": resource.Name}, nil
		}))
}

// resolveResourceID accepts either a resource id or a (kind, name) pair.
func (s *Service) resolveResourceID(id, kind, name string) (string, error) {
	if id != "" {
		return id, nil
	}
	if name == "" {
		return "", NewError(KindInvalidInput, "resourceId or name is required")
	}
	k, err := parseKind(kind)
	if err != nil {
		return "", err
	}
	resource, err := s.Resources.GetResourceByName(k, name)
	if err != nil {
		return "", err
	}
	return resource.ID, nil
}

func (s *Service) resolveAgentAction(ctx context.Context, agentID string, action func(id, actor string) (*agents.AgentRecord, error)) (any, error) {
	if agentID == "" {
		return nil, NewError(KindInvalidInput, "agentId is required")
	}
	record, err := s.resolveAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	record, err = action(record.ID, CallerFromContext(ctx).Principal)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"agent_id":        record.AgentID,
		"org_id":          record.OrgID,
		"approval_status": record.ApprovalStatus,
	}, nil
}

func (s *Service) resolveAccessPair(ctx context.Context, in accessInput) (*agents.AgentRecord, *registry.ResourceRecord, error) {
	if in.AgentID == "" || in.Name == "" {
		return nil, nil, NewError(KindInvalidInput, "agentId and name are required")
	}
	agent, err := s.resolveAgent(ctx, in.AgentID)
	if err != nil {
		return nil, nil, err
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return nil, nil, err
	}
	resource, err := s.Resources.GetResourceByName(kind, in.Name)
	if err != nil {
		return nil, nil, err
	}
	return agent, resource, nil
}

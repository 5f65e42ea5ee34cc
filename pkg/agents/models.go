package agents

import (
	"fmt"
	"time"

	"github.com/agentplane/govern/pkg/dbjson"
)

// ApprovalStatus represents the governance state of a registered agent.
type ApprovalStatus string

const (
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Agent status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// AgentRecord is a registered external caller identity. The caller-supplied
// agent id is unique within its organization.
type AgentRecord struct {
	ID                string             `gorm:"primaryKey;column:id;type:varchar(36)"`
	OrgID             string             `gorm:"column:org_id;uniqueIndex:idx_agent_org_id,priority:1;not null"`
	AgentID           string             `gorm:"column:agent_id;uniqueIndex:idx_agent_org_id,priority:2;not null"`
	Name              string             `gorm:"column:name"`
	Description       string             `gorm:"column:description"`
	EndpointURL       string             `gorm:"column:endpoint_url;index"`
	ManifestVersion   string             `gorm:"column:manifest_version"`
	OwnerTeam         string             `gorm:"column:owner_team"`
	Domain            string             `gorm:"column:domain"`
	ToolsUsed         dbjson.StringSlice `gorm:"column:tools_used;type:text"`
	AllowedDataScopes dbjson.StringSlice `gorm:"column:allowed_data_scopes;type:text"`
	PIIHandling       bool               `gorm:"column:pii_handling"`
	RegulatoryScope   string             `gorm:"column:regulatory_scope"`
	Status            string             `gorm:"column:status;default:active;not null"`
	ApprovalStatus    string             `gorm:"column:approval_status;index;default:pending_approval;not null"`
	ApprovedBy        string             `gorm:"column:approved_by"`
	ApprovedAt        *time.Time         `gorm:"column:approved_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (AgentRecord) TableName() string { return "agents" }

// Manifest is the inbound registration document, pushed by an agent at
// startup or pulled by the gateway.
type Manifest struct {
	AgentID           string   `json:"agent_id" yaml:"agent_id"`
	Version           string   `json:"version" yaml:"version"`
	OwnerTeam         string   `json:"owner_team" yaml:"owner_team"`
	URL               string   `json:"url" yaml:"url"`
	Name              string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description       string   `json:"description,omitempty" yaml:"description,omitempty"`
	Domain            string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	ToolsUsed         []string `json:"tools_used,omitempty" yaml:"tools_used,omitempty"`
	AllowedDataScopes []string `json:"allowed_data_scopes,omitempty" yaml:"allowed_data_scopes,omitempty"`
	PIIHandling       bool     `json:"pii_handling,omitempty" yaml:"pii_handling,omitempty"`
	RegulatoryScope   string   `json:"regulatory_scope,omitempty" yaml:"regulatory_scope,omitempty"`
}

// Validate checks the manifest's required fields.
func (m *Manifest) Validate() error {
	missing := ""
	switch {
	case m.AgentID == "":
		missing = "agent_id"
	case m.Version == "":
		missing = "version"
	case m.OwnerTeam == "":
		missing = "owner_team"
	case m.URL == "":
		missing = "url"
	}
	if missing != "" {
		return &ValidationError{Field: missing}
	}
	return nil
}

// ValidationError reports a missing required manifest field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest is missing required field %q", e.Field)
}

// NotFoundError reports a missing agent.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Key)
}

// AmbiguousIDError reports an agent id that resolves to more than one
// organization when no org qualifier was given.
type AmbiguousIDError struct {
	AgentID string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("agent id %q is ambiguous across organizations", e.AgentID)
}

// TransitionError reports an approval transition attempted from a state
// other than pending_approval.
type TransitionError struct {
	From    ApprovalStatus `json:"from"`
	To      ApprovalStatus `json:"to"`
	Message string         `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

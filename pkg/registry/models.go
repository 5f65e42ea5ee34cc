package registry

import (
	"time"

	"github.com/agentplane/govern/pkg/dbjson"
)

// ResourceKind identifies the two governed resource kinds.
type ResourceKind string

const (
	KindPrompt  ResourceKind = "prompt"
	KindContext ResourceKind = "context"
)

// VersionStatus represents the approval state of a resource version.
type VersionStatus string

const (
	StatusDraft    VersionStatus = "draft"
	StatusProposed VersionStatus = "proposed"
	StatusApproved VersionStatus = "approved"
	StatusRejected VersionStatus = "rejected"
	StatusArchived VersionStatus = "archived"
)

// ResourceRecord is a named, versioned governed artifact: a prompt or a
// context. CurrentVersionID is nil until a version has been approved; a
// resource without a current version is never served to agents.
type ResourceRecord struct {
	ID               string             `gorm:"primaryKey;column:id;type:varchar(36)"`
	OrgID            string             `gorm:"column:org_id;index;default:root;not null"`
	Kind             string             `gorm:"column:kind;index:idx_resource_kind;not null"`
	Name             string             `gorm:"column:name;uniqueIndex:idx_resource_name;not null"`
	Description      string             `gorm:"column:description"`
	Tags             dbjson.StringSlice `gorm:"column:tags;type:text"`
	Domain           string             `gorm:"column:domain"`
	CurrentVersionID *string            `gorm:"column:current_version_id"`
	CreatedBy        string             `gorm:"column:created_by;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedBy        string             `gorm:"column:updated_by"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (ResourceRecord) TableName() string { return "resources" }

// VersionRecord is an immutable, hash-identified snapshot of a resource's
// content plus its approval status. Version numbers are 1-based, strictly
// increasing, and never reused within a resource.
type VersionRecord struct {
	ID              string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	ResourceID      string     `gorm:"column:resource_id;index;uniqueIndex:idx_version_number,priority:1;not null"`
	Version         int        `gorm:"column:version;uniqueIndex:idx_version_number,priority:2;not null"`
	Content         string     `gorm:"column:content;type:text;not null"`
	SystemPrompt    string     `gorm:"column:system_prompt;type:text"`
	ModelHint       string     `gorm:"column:model_hint"`
	ContentHash     string     `gorm:"column:content_hash;not null"`
	Status          string     `gorm:"column:status;index;default:draft;not null"`
	ParentVersionID string     `gorm:"column:parent_version_id"`
	CommitMessage   string     `gorm:"column:commit_message"`
	CreatedBy       string     `gorm:"column:created_by;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	SubmittedBy     string     `gorm:"column:submitted_by"`
	ApprovedBy      string     `gorm:"column:approved_by"`
	ApprovedAt      *time.Time `gorm:"column:approved_at"`
	RejectedBy      string     `gorm:"column:rejected_by"`
	RejectedAt      *time.Time `gorm:"column:rejected_at"`
}

// TableName returns the GORM table name.
func (VersionRecord) TableName() string { return "resource_versions" }

package ledger

import (
	"time"

	"github.com/agentplane/govern/pkg/dbjson"
)

// ActionType classifies a ledger event.
type ActionType string

const (
	ActionContextDelivered ActionType = "context_delivered"
	ActionContextDenied    ActionType = "context_denied"
	ActionPromptUsed       ActionType = "prompt_used"
	ActionInference        ActionType = "inference_event"
	ActionProtocolCall     ActionType = "protocol_call"
	ActionIncident         ActionType = "incident_reported"
)

// EventRecord is an immutable, append-only audit event. The monotonic
// primary key doubles as the event ordering; rows are never updated or
// deleted, and they are the sole source of truth for lineage
// reconstruction.
type EventRecord struct {
	ID            uint64     `gorm:"primaryKey;column:id;autoIncrement"`
	AgentID       string     `gorm:"column:agent_id;index:idx_event_agent"`
	OrgID         string     `gorm:"column:org_id"`
	TraceID       string     `gorm:"column:trace_id;index:idx_event_trace"`
	ActionType    string     `gorm:"column:action_type;index:idx_event_action;not null"`
	ResourceID    string     `gorm:"column:resource_id;index"`
	ResourceName  string     `gorm:"column:resource_name"`
	VersionID     string     `gorm:"column:version_id"`
	ContentHash   string     `gorm:"column:content_hash"`
	PromptID      string     `gorm:"column:prompt_id"`
	PromptVersion string     `gorm:"column:prompt_version_id"`
	Intent        string     `gorm:"column:intent"`
	Reason        string     `gorm:"column:reason"`
	SkillName     string     `gorm:"column:skill_name"`
	InputSummary  string     `gorm:"column:input_summary"`
	ResultSummary string     `gorm:"column:result_summary"`
	CallError     string     `gorm:"column:call_error"`
	Metadata      dbjson.Map `gorm:"column:metadata;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;index:idx_event_time;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }

// IntersectionFilter narrows intersection-log queries.
type IntersectionFilter struct {
	AgentID string
	TraceID string
	From    *time.Time
	To      *time.Time
	Limit   int
}

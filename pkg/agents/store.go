// Package agents tracks the external caller identities that consume
// governed content: registration by manifest, the approval workflow, and
// lookups used by the policy gate.
package agents

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentplane/govern/pkg/dbjson"
)

// DefaultOrg is the root scope used when a manifest does not resolve to
// an organization.
const DefaultOrg = "root"

// Store provides registration and approval operations for agents.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new agent Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the agents table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AgentRecord{}); err != nil {
		return fmt.Errorf("auto-migrate agents: %w", err)
	}
	return nil
}

// RegisterByManifest upserts an agent keyed by (org, agent_id). First
// registration creates the agent in pending_approval; repeat registration
// updates manifest fields in place without touching the approval status,
// so a previously approved agent re-pinging does not lose its approval.
// The organization resolves from orgHint, then the manifest's owner team,
// then the root scope. Returns the record and whether it was created.
func (s *Store) RegisterByManifest(manifest *Manifest, orgHint string) (*AgentRecord, bool, error) {
	if err := manifest.Validate(); err != nil {
		return nil, false, err
	}

	org := orgHint
	if org == "" {
		org = manifest.OwnerTeam
	}
	if org == "" {
		org = DefaultOrg
	}

	var record *AgentRecord
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing AgentRecord
		err := tx.Where("org_id = ? AND agent_id = ?", org, manifest.AgentID).First(&existing).Error
		switch {
		case err == nil:
			applyManifest(&existing, manifest)
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("update agent: %w", err)
			}
			record = &existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := &AgentRecord{
				ID:             uuid.New().String(),
				OrgID:          org,
				AgentID:        manifest.AgentID,
				Status:         StatusActive,
				ApprovalStatus: string(ApprovalPending),
			}
			applyManifest(fresh, manifest)
			if err := tx.Create(fresh).Error; err != nil {
				return fmt.Errorf("create agent: %w", err)
			}
			record = fresh
			created = true
			return nil
		default:
			return fmt.Errorf("look up agent: %w", err)
		}
	})
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// applyManifest copies manifest fields onto a record. Approval fields are
// deliberately untouched; only governance action changes approval state.
func applyManifest(record *AgentRecord, m *Manifest) {
	record.Name = m.Name
	record.Description = m.Description
	record.EndpointURL = m.URL
	record.ManifestVersion = m.Version
	record.OwnerTeam = m.OwnerTeam
	record.Domain = m.Domain
	record.ToolsUsed = dbjson.StringSlice(m.ToolsUsed)
	record.AllowedDataScopes = dbjson.StringSlice(m.AllowedDataScopes)
	record.PIIHandling = m.PIIHandling
	record.RegulatoryScope = m.RegulatoryScope
}

// Get retrieves an agent by row id.
func (s *Store) Get(id string) (*AgentRecord, error) {
	var record AgentRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Key: id}
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &record, nil
}

// GetByAgentID retrieves an agent by its caller-supplied id. When org is
// empty, the id is resolved across organizations and must be unambiguous.
func (s *Store) GetByAgentID(org, agentID string) (*AgentRecord, error) {
	var records []AgentRecord
	query := s.db.Where("agent_id = ?", agentID)
	if org != "" {
		query = query.Where("org_id = ?", org)
	}
	if err := query.Limit(2).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get agent by agent id: %w", err)
	}
	switch len(records) {
	case 0:
		return nil, &NotFoundError{Key: agentID}
	case 1:
		return &records[0], nil
	default:
		return nil, &AmbiguousIDError{AgentID: agentID}
	}
}

// GetByEndpoint retrieves an agent by its declared endpoint URL.
func (s *Store) GetByEndpoint(url string) (*AgentRecord, error) {
	var record AgentRecord
	err := s.db.Where("endpoint_url = ?", url).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Key: url}
		}
		return nil, fmt.Errorf("get agent by endpoint: %w", err)
	}
	return &record, nil
}

// List returns paginated agents, optionally scoped to an organization.
func (s *Store) List(org string, pageSize int, pageToken string) ([]AgentRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	query := s.db.Order("agent_id ASC").Limit(pageSize + 1)
	if org != "" {
		query = query.Where("org_id = ?", org)
	}
	if pageToken != "" {
		query = query.Where("agent_id > ?", pageToken)
	}

	var records []AgentRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list agents: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].AgentID
		records = records[:pageSize]
	}
	return records, nextToken, nil
}

// Approve transitions a pending agent to approved. The conditional update
// guarantees two concurrent approvals cannot both succeed.
func (s *Store) Approve(id, approvedBy string) (*AgentRecord, error) {
	return s.resolve(id, ApprovalApproved, approvedBy)
}

// Reject transitions a pending agent to rejected.
func (s *Store) Reject(id, rejectedBy string) (*AgentRecord, error) {
	return s.resolve(id, ApprovalRejected, rejectedBy)
}

func (s *Store) resolve(id string, to ApprovalStatus, actor string) (*AgentRecord, error) {
	now := time.Now()
	result := s.db.Model(&AgentRecord{}).
		Where("id = ? AND approval_status = ?", id, string(ApprovalPending)).
		Updates(map[string]any{
			"approval_status": string(to),
			"approved_by":     actor,
			"approved_at":     &now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("resolve agent approval: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		record, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		return nil, &TransitionError{
			From:    ApprovalStatus(record.ApprovalStatus),
			To:      to,
			Message: fmt.Sprintf("agent %s is %s, not pending_approval", id, record.ApprovalStatus),
		}
	}
	return s.Get(id)
}

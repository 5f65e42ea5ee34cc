package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GrantRecord is an explicit agent-to-resource access link, maintained by
// operators outside the gate itself.
type GrantRecord struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	AgentID    string    `gorm:"column:agent_id;uniqueIndex:idx_grant_pair,priority:1;not null"`
	ResourceID string    `gorm:"column:resource_id;uniqueIndex:idx_grant_pair,priority:2;not null"`
	GrantedBy  string    `gorm:"column:granted_by;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (GrantRecord) TableName() string { return "resource_grants" }

// LinkStore persists agent-to-resource grants.
type LinkStore struct {
	db *gorm.DB
}

// NewLinkStore creates a new LinkStore.
func NewLinkStore(db *gorm.DB) *LinkStore {
	return &LinkStore{db: db}
}

// AutoMigrate creates or updates the resource_grants table.
func (s *LinkStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&GrantRecord{}); err != nil {
		return fmt.Errorf("auto-migrate resource_grants: %w", err)
	}
	return nil
}

// Grant creates a link. Granting an existing pair is a no-op.
func (s *LinkStore) Grant(agentID, resourceID, grantedBy string) error {
	var existing GrantRecord
	err := s.db.Where("agent_id = ? AND resource_id = ?", agentID, resourceID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up grant: %w", err)
	}
	record := &GrantRecord{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		ResourceID: resourceID,
		GrantedBy:  grantedBy,
	}
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// Revoke removes a link. Revoking a missing pair is a no-op.
func (s *LinkStore) Revoke(agentID, resourceID string) error {
	if err := s.db.Where("agent_id = ? AND resource_id = ?", agentID, resourceID).
		Delete(&GrantRecord{}).Error; err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

// HasGrant reports whether a link exists for the pair.
func (s *LinkStore) HasGrant(agentID, resourceID string) (bool, error) {
	var count int64
	err := s.db.Model(&GrantRecord{}).
		Where("agent_id = ? AND resource_id = ?", agentID, resourceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check grant: %w", err)
	}
	return count > 0, nil
}

// ListForAgent returns all resource ids granted to an agent.
func (s *LinkStore) ListForAgent(agentID string) ([]string, error) {
	var records []GrantRecord
	if err := s.db.Where("agent_id = ?", agentID).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ResourceID
	}
	return ids, nil
}

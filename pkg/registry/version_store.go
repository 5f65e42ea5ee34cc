package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentplane/govern/pkg/hashing"
)

// proposeRetries bounds retry attempts when two concurrent proposals race
// on the same version number. The unique index on (resource_id, version)
// guarantees at most one winner per number.
const proposeRetries = 3

// VersionStore implements the approval state machine over immutable
// version records. All transitions are atomic conditional updates so two
// concurrent calls on the same version cannot both succeed.
type VersionStore struct {
	db      *gorm.DB
	machine *StateMachine
}

// NewVersionStore creates a new VersionStore.
func NewVersionStore(db *gorm.DB) *VersionStore {
	return &VersionStore{db: db, machine: NewStateMachine()}
}

// ProposeInput describes a new version proposal.
type ProposeInput struct {
	ResourceID    string
	Content       string
	SystemPrompt  string
	ModelHint     string
	CommitMessage string
	CreatedBy     string
	AutoApprove   bool
}

// ProposeVersion creates the next version of a resource. The version
// number is assigned inside a transaction serialized on the resource and
// the content hash is computed once, at creation. With AutoApprove set
// the version is approved immediately and the resource's current version
// pointer is repointed in the same transaction.
func (s *VersionStore) ProposeVersion(in ProposeInput) (*VersionRecord, error) {
	var record *VersionRecord
	var lastErr error

	for attempt := 0; attempt < proposeRetries; attempt++ {
		record, lastErr = s.tryPropose(in)
		if lastErr == nil {
			return record, nil
		}
		if !isUniqueViolation(lastErr) {
			return nil, lastErr
		}
		// Lost the version-number race; recompute and retry.
	}
	return nil, fmt.Errorf("propose version: %w", lastErr)
}

func (s *VersionStore) tryPropose(in ProposeInput) (*VersionRecord, error) {
	var record *VersionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var resource ResourceRecord
		if err := tx.Where("id = ?", in.ResourceID).First(&resource).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "resource", Key: in.ResourceID}
			}
			return fmt.Errorf("load resource: %w", err)
		}

		var latest VersionRecord
		parentID := ""
		next := 1
		err := tx.Where("resource_id = ?", in.ResourceID).Order("version DESC").First(&latest).Error
		switch {
		case err == nil:
			next = latest.Version + 1
			parentID = latest.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First version for this resource.
		default:
			return fmt.Errorf("find latest version: %w", err)
		}

		now := time.Now()
		record = &VersionRecord{
			ID:              uuid.New().String(),
			ResourceID:      in.ResourceID,
			Version:         next,
			Content:         in.Content,
			SystemPrompt:    in.SystemPrompt,
			ModelHint:       in.ModelHint,
			ContentHash:     hashing.Digest(in.Content),
			Status:          string(StatusProposed),
			ParentVersionID: parentID,
			CommitMessage:   in.CommitMessage,
			CreatedBy:       in.CreatedBy,
			SubmittedBy:     in.CreatedBy,
		}
		if in.AutoApprove {
			record.Status = string(StatusApproved)
			record.ApprovedBy = in.CreatedBy
			record.ApprovedAt = &now
		}

		if err := tx.Create(record).Error; err != nil {
			return err
		}

		if in.AutoApprove {
			if err := tx.Model(&ResourceRecord{}).Where("id = ?", in.ResourceID).
				Updates(map[string]any{
					"current_version_id": record.ID,
					"updated_by":         in.CreatedBy,
				}).Error; err != nil {
				return fmt.Errorf("repoint current version: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetVersion retrieves a version by id.
func (s *VersionStore) GetVersion(id string) (*VersionRecord, error) {
	var record VersionRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "version", Key: id}
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &record, nil
}

// ListVersions returns a resource's versions ordered newest first.
func (s *VersionStore) ListVersions(resourceID string, pageSize int, pageToken string) ([]VersionRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Where("resource_id = ?", resourceID).Order("version DESC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("version < ?", pageToken)
	}

	var records []VersionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list versions: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = fmt.Sprintf("%d", records[pageSize-1].Version)
		records = records[:pageSize]
	}
	return records, nextToken, nil
}

// Approve transitions a proposed version to approved, stamps the
// approver, and repoints the resource's current version to it. The
// previous current version stays approved in history but is no longer
// served. Fails with *TransitionError unless the version is proposed.
func (s *VersionStore) Approve(versionID, approvedBy string) (*VersionRecord, error) {
	var record *VersionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&VersionRecord{}).
			Where("id = ? AND status = ?", versionID, string(StatusProposed)).
			Updates(map[string]any{
				"status":      string(StatusApproved),
				"approved_by": approvedBy,
				"approved_at": &now,
			})
		if result.Error != nil {
			return fmt.Errorf("approve version: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return s.transitionFailure(tx, versionID, StatusApproved)
		}

		var v VersionRecord
		if err := tx.Where("id = ?", versionID).First(&v).Error; err != nil {
			return fmt.Errorf("reload version: %w", err)
		}
		record = &v

		if err := tx.Model(&ResourceRecord{}).Where("id = ?", v.ResourceID).
			Updates(map[string]any{
				"current_version_id": v.ID,
				"updated_by":         approvedBy,
			}).Error; err != nil {
			return fmt.Errorf("repoint current version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Reject transitions a proposed version to rejected. The resource's
// current version pointer is not changed.
func (s *VersionStore) Reject(versionID, rejectedBy string) (*VersionRecord, error) {
	var record *VersionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&VersionRecord{}).
			Where("id = ? AND status = ?", versionID, string(StatusProposed)).
			Updates(map[string]any{
				"status":      string(StatusRejected),
				"rejected_by": rejectedBy,
				"rejected_at": &now,
			})
		if result.Error != nil {
			return fmt.Errorf("reject version: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return s.transitionFailure(tx, versionID, StatusRejected)
		}

		var v VersionRecord
		if err := tx.Where("id = ?", versionID).First(&v).Error; err != nil {
			return fmt.Errorf("reload version: %w", err)
		}
		record = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Archive transitions a version from any non-archived status to archived.
// If the archived version was the resource's current version, the pointer
// falls back to the most recent remaining approved version, or null.
func (s *VersionStore) Archive(versionID, actor string) (*VersionRecord, error) {
	var record *VersionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var v VersionRecord
		if err := tx.Where("id = ?", versionID).First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "version", Key: versionID}
			}
			return fmt.Errorf("load version: %w", err)
		}
		if err := s.machine.ValidateTransition(VersionStatus(v.Status), StatusArchived); err != nil {
			return err
		}

		result := tx.Model(&VersionRecord{}).
			Where("id = ? AND status = ?", versionID, v.Status).
			Update("status", string(StatusArchived))
		if result.Error != nil {
			return fmt.Errorf("archive version: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return s.transitionFailure(tx, versionID, StatusArchived)
		}
		v.Status = string(StatusArchived)
		record = &v

		var resource ResourceRecord
		if err := tx.Where("id = ?", v.ResourceID).First(&resource).Error; err != nil {
			return fmt.Errorf("load resource: %w", err)
		}
		if resource.CurrentVersionID == nil || *resource.CurrentVersionID != versionID {
			return nil
		}

		// The served version was archived; fall back to the newest
		// remaining approved version, or clear the pointer.
		var fallback VersionRecord
		var newCurrent any
		err := tx.Where("resource_id = ? AND status = ? AND id <> ?",
			v.ResourceID, string(StatusApproved), versionID).
			Order("version DESC").First(&fallback).Error
		switch {
		case err == nil:
			newCurrent = fallback.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			newCurrent = nil
		default:
			return fmt.Errorf("find fallback version: %w", err)
		}

		if err := tx.Model(&ResourceRecord{}).Where("id = ?", v.ResourceID).
			Updates(map[string]any{
				"current_version_id": newCurrent,
				"updated_by":         actor,
			}).Error; err != nil {
			return fmt.Errorf("repoint current version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// VerifyIntegrity recomputes the content hash of a stored version and
// compares it to the hash recorded at creation. A mismatch is returned as
// *IntegrityError and never repaired.
func (s *VersionStore) VerifyIntegrity(versionID string) (*VersionRecord, error) {
	record, err := s.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	if err := hashing.Verify(record.Content, record.ContentHash); err != nil {
		return nil, &IntegrityError{VersionID: versionID, Detail: err.Error()}
	}
	return record, nil
}

// GetCurrent returns the version a resource currently serves. The pointer
// target is defensively re-checked to still be approved; if it is not, or
// the pointer is unset, the latest approved version is used instead.
// Returns *NotFoundError when no approved version exists.
func (s *VersionStore) GetCurrent(resourceID string) (*VersionRecord, error) {
	var resource ResourceRecord
	if err := s.db.Where("id = ?", resourceID).First(&resource).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "resource", Key: resourceID}
		}
		return nil, fmt.Errorf("load resource: %w", err)
	}

	if resource.CurrentVersionID != nil {
		var v VersionRecord
		err := s.db.Where("id = ?", *resource.CurrentVersionID).First(&v).Error
		if err == nil && v.Status == string(StatusApproved) {
			return &v, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load current version: %w", err)
		}
		// Pointer target missing or mutated out of band; fall through.
	}

	var latest VersionRecord
	err := s.db.Where("resource_id = ? AND status = ?", resourceID, string(StatusApproved)).
		Order("version DESC").First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "version", Key: resourceID}
		}
		return nil, fmt.Errorf("find approved version: %w", err)
	}
	return &latest, nil
}

// CountPendingProposals returns the number of unresolved proposed
// versions for a resource. Used by the compliance-oriented read skills.
func (s *VersionStore) CountPendingProposals(resourceID string) (int, error) {
	var count int64
	err := s.db.Model(&VersionRecord{}).
		Where("resource_id = ? AND status = ?", resourceID, string(StatusProposed)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending proposals: %w", err)
	}
	return int(count), nil
}

// transitionFailure inspects a version after a conditional update matched
// no rows and returns the precise failure: missing row or illegal
// transition from its actual status.
func (s *VersionStore) transitionFailure(tx *gorm.DB, versionID string, to VersionStatus) error {
	var v VersionRecord
	if err := tx.Where("id = ?", versionID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "version", Key: versionID}
		}
		return fmt.Errorf("inspect version: %w", err)
	}
	if err := s.machine.ValidateTransition(VersionStatus(v.Status), to); err != nil {
		return err
	}
	// The transition was legal but another writer got there first.
	return &TransitionError{
		Code:    "INVALID_TRANSITION",
		From:    VersionStatus(v.Status),
		To:      to,
		Message: fmt.Sprintf("version %s was concurrently modified", versionID),
	}
}

package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentplane/govern/pkg/dbjson"
)

// Store provides CRUD operations for governed resources. Version and
// approval operations live on VersionStore.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new resource Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the resources and resource_versions tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&ResourceRecord{}); err != nil {
		return fmt.Errorf("auto-migrate resources: %w", err)
	}
	if err := s.db.AutoMigrate(&VersionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate resource_versions: %w", err)
	}
	return nil
}

// CreateResource creates a new resource in draft state (no current
// version). Returns *DuplicateNameError if the name is taken.
func (s *Store) CreateResource(kind ResourceKind, name, description string, tags []string, domain, createdBy string) (*ResourceRecord, error) {
	record := &ResourceRecord{
		ID:          uuid.New().String(),
		Kind:        string(kind),
		Name:        name,
		Description: description,
		Tags:        dbjson.StringSlice(tags),
		Domain:      domain,
		CreatedBy:   createdBy,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ResourceRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check resource name: %w", err)
		}
		if count > 0 {
			return &DuplicateNameError{Name: name}
		}
		if err := tx.Create(record).Error; err != nil {
			if isUniqueViolation(err) {
				return &DuplicateNameError{Name: name}
			}
			return fmt.Errorf("create resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetResource retrieves a resource by id.
func (s *Store) GetResource(id string) (*ResourceRecord, error) {
	var record ResourceRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "resource", Key: id}
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &record, nil
}

// GetResourceByName retrieves a resource by kind and globally unique name.
func (s *Store) GetResourceByName(kind ResourceKind, name string) (*ResourceRecord, error) {
	var record ResourceRecord
	err := s.db.Where("kind = ? AND name = ?", string(kind), name).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "resource", Key: name}
		}
		return nil, fmt.Errorf("get resource by name: %w", err)
	}
	return &record, nil
}

// ListResources returns paginated resources of a kind, optionally filtered
// by tag. pageToken is the name of the last record from the previous page.
func (s *Store) ListResources(kind ResourceKind, tag string, pageSize int, pageToken string) ([]ResourceRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	query := s.db.Where("kind = ?", string(kind)).Order("name ASC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("name > ?", pageToken)
	}

	var records []ResourceRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list resources: %w", err)
	}

	// Tag filtering happens in memory; tags are stored as a JSON text column.
	if tag != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.Tags.Contains(tag) {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].Name
		records = records[:pageSize]
	}

	return records, nextToken, nil
}

// UpdateMetadata updates a resource's description, tags, and domain.
func (s *Store) UpdateMetadata(id, description string, tags []string, domain, updatedBy string) error {
	result := s.db.Model(&ResourceRecord{}).Where("id = ?", id).Updates(map[string]any{
		"description": description,
		"tags":        dbjson.StringSlice(tags),
		"domain":      domain,
		"updated_by":  updatedBy,
	})
	if result.Error != nil {
		return fmt.Errorf("update resource metadata: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Entity: "resource", Key: id}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-index violation from
// any of the supported dialects.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

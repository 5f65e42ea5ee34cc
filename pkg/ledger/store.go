// Package ledger is the append-only audit/lineage event store. Every
// delivery, denial, and protocol call is recorded here with enough detail
// to reconstruct which agent used which prompt version and which context
// version, and why. Events are durable before the gateway responds: a
// failed append fails the governed operation.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/agentplane/govern/pkg/dbjson"
)

// Store appends and queries audit events.
type Store struct {
	db     *gorm.DB
	sink   Sink
	logger *slog.Logger
}

// NewStore creates a ledger Store. sink may be nil to disable the
// denormalized export.
func NewStore(db *gorm.DB, sink Sink, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Store{db: db, sink: sink, logger: logger}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_events: %w", err)
	}
	return nil
}

// Append inserts an immutable event. The database write is mandatory;
// the sink export is best-effort and only logged on failure.
func (s *Store) Append(ctx context.Context, event *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := s.sink.Emit(ctx, flatten(event)); err != nil {
		s.logger.Warn("audit sink emit failed", "event", event.ID, "error", err)
	}
	return nil
}

// RecordDelivery records a successful context delivery.
func (s *Store) RecordDelivery(ctx context.Context, agentID, orgID, traceID, resourceID, resourceName, versionID, contentHash, intent string) error {
	return s.Append(ctx, &EventRecord{
		AgentID:      agentID,
		OrgID:        orgID,
		TraceID:      traceID,
		ActionType:   string(ActionContextDelivered),
		ResourceID:   resourceID,
		ResourceName: resourceName,
		VersionID:    versionID,
		ContentHash:  contentHash,
		Intent:       intent,
	})
}

// RecordDenial records a denied delivery. reason must be non-empty; a
// silent denial is a correctness bug.
func (s *Store) RecordDenial(ctx context.Context, agentID, orgID, traceID, resourceID, resourceName, reason string) error {
	if reason == "" {
		reason = "denied without stated reason"
	}
	return s.Append(ctx, &EventRecord{
		AgentID:      agentID,
		OrgID:        orgID,
		TraceID:      traceID,
		ActionType:   string(ActionContextDenied),
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Reason:       reason,
	})
}

// RecordPromptUsage records that a prompt version was served.
func (s *Store) RecordPromptUsage(ctx context.Context, agentID, orgID, traceID, promptID, promptVersionID, contentHash, intent string) error {
	return s.Append(ctx, &EventRecord{
		AgentID:       agentID,
		OrgID:         orgID,
		TraceID:       traceID,
		ActionType:    string(ActionPromptUsed),
		PromptID:      promptID,
		PromptVersion: promptVersionID,
		ContentHash:   contentHash,
		Intent:        intent,
	})
}

// RecordIntersection records that a single inference consumed a prompt
// version and a context version together. This is the event that answers
// "what did agent X use at time T".
func (s *Store) RecordIntersection(ctx context.Context, agentID, orgID, traceID, contextID, contextVersionID, promptID, promptVersionID, intent string) error {
	return s.Append(ctx, &EventRecord{
		AgentID:       agentID,
		OrgID:         orgID,
		TraceID:       traceID,
		ActionType:    string(ActionInference),
		ResourceID:    contextID,
		VersionID:     contextVersionID,
		PromptID:      promptID,
		PromptVersion: promptVersionID,
		Intent:        intent,
	})
}

// RecordProtocolCall records a skill invocation, successful or not.
func (s *Store) RecordProtocolCall(ctx context.Context, agentID, orgID, traceID, skillName, inputSummary, resultSummary, callError string, metadata map[string]any) error {
	return s.Append(ctx, &EventRecord{
		AgentID:       agentID,
		OrgID:         orgID,
		TraceID:       traceID,
		ActionType:    string(ActionProtocolCall),
		SkillName:     skillName,
		InputSummary:  inputSummary,
		ResultSummary: resultSummary,
		CallError:     callError,
		Metadata:      dbjson.Map(metadata),
	})
}

// GetLineage returns the most recent delivery events, newest first.
func (s *Store) GetLineage(ctx context.Context, limit int) ([]EventRecord, error) {
	return s.listByAction(ctx, ActionContextDelivered, limit)
}

// GetBlocked returns the most recent denial events, newest first.
func (s *Store) GetBlocked(ctx context.Context, limit int) ([]EventRecord, error) {
	return s.listByAction(ctx, ActionContextDenied, limit)
}

func (s *Store) listByAction(ctx context.Context, action ActionType, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var records []EventRecord
	err := s.db.WithContext(ctx).
		Where("action_type = ?", string(action)).
		Order("id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list %s events: %w", action, err)
	}
	return records, nil
}

// GetIntersectionLog returns inference events matching the filter, newest
// first.
func (s *Store) GetIntersectionLog(ctx context.Context, filter IntersectionFilter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	query := s.db.WithContext(ctx).Where("action_type = ?", string(ActionInference))
	if filter.AgentID != "" {
		query = query.Where("agent_id = ?", filter.AgentID)
	}
	if filter.TraceID != "" {
		query = query.Where("trace_id = ?", filter.TraceID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var records []EventRecord
	if err := query.Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list intersection events: %w", err)
	}
	return records, nil
}

// ListAll returns paginated events across all action types, newest first.
// pageToken is the id of the last event from the previous page.
func (s *Store) ListAll(ctx context.Context, actionType string, pageSize int, pageToken uint64) ([]EventRecord, uint64, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	query := s.db.WithContext(ctx).Order("id DESC").Limit(pageSize + 1)
	if actionType != "" {
		query = query.Where("action_type = ?", actionType)
	}
	if pageToken > 0 {
		query = query.Where("id < ?", pageToken)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken uint64
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ID
		records = records[:pageSize]
	}
	return records, nextToken, nil
}

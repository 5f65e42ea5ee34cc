package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FlatEvent is the denormalized record shape emitted to the external
// analytical sink. Field names are stable and versioned independently of
// the ledger schema.
type FlatEvent struct {
	SchemaVersion string         `json:"schema_version"`
	EventID       uint64         `json:"event_id"`
	EventType     string         `json:"event_type"`
	AgentID       string         `json:"agent_id,omitempty"`
	OrgID         string         `json:"org_id,omitempty"`
	TraceID       string         `json:"trace_id,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	ResourceName  string         `json:"resource_name,omitempty"`
	VersionID     string         `json:"version_id,omitempty"`
	ContentHash   string         `json:"content_hash,omitempty"`
	PromptID      string         `json:"prompt_id,omitempty"`
	PromptVersion string         `json:"prompt_version_id,omitempty"`
	Intent        string         `json:"intent,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	SkillName     string         `json:"skill_name,omitempty"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// sinkSchemaVersion tags emitted records so the external warehouse can
// evolve its ingestion independently.
const sinkSchemaVersion = "v1"

// Sink receives denormalized audit events for append-only ingestion into
// an external analytical store. A sink only receives; it never answers
// queries.
type Sink interface {
	Emit(ctx context.Context, event FlatEvent) error
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, FlatEvent) error { return nil }

// FileSink appends one JSON record per line to a local file. Suitable for
// tailing into an external warehouse loader.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a FileSink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Emit implements Sink.
func (s *FileSink) Emit(_ context.Context, event FlatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open sink file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(event); err != nil {
		return fmt.Errorf("encode sink record: %w", err)
	}
	return nil
}

// flatten converts a stored event to its denormalized sink shape.
func flatten(e *EventRecord) FlatEvent {
	return FlatEvent{
		SchemaVersion: sinkSchemaVersion,
		EventID:       e.ID,
		EventType:     e.ActionType,
		AgentID:       e.AgentID,
		OrgID:         e.OrgID,
		TraceID:       e.TraceID,
		ResourceID:    e.ResourceID,
		ResourceName:  e.ResourceName,
		VersionID:     e.VersionID,
		ContentHash:   e.ContentHash,
		PromptID:      e.PromptID,
		PromptVersion: e.PromptVersion,
		Intent:        e.Intent,
		Reason:        e.Reason,
		SkillName:     e.SkillName,
		Error:         e.CallError,
		Metadata:      map[string]any(e.Metadata),
		Timestamp:     e.CreatedAt,
	}
}

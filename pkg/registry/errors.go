package registry

import "fmt"

// NotFoundError reports a missing resource or version.
type NotFoundError struct {
	Entity string // "resource" or "version"
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// DuplicateNameError reports a resource name collision.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("resource name %q already exists", e.Name)
}

// TransitionError is a structured error for invalid approval-state
// transitions.
type TransitionError struct {
	Code    string        `json:"code"`
	From    VersionStatus `json:"from"`
	To      VersionStatus `json:"to"`
	Message string        `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

// IntegrityError reports a content hash mismatch on a stored version.
// It is always surfaced to the caller and never silently repaired.
type IntegrityError struct {
	VersionID string
	Detail    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on version %s: %s", e.VersionID, e.Detail)
}

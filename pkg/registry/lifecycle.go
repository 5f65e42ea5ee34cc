package registry

import "fmt"

// TransitionRule defines an allowed version status transition.
type TransitionRule struct {
	From VersionStatus
	To   VersionStatus
}

// DefaultTransitions defines the legal approval-state transitions.
// Only proposed versions may be approved or rejected; any non-archived
// version may be archived.
var DefaultTransitions = []TransitionRule{
	{From: StatusDraft, To: StatusProposed},
	{From: StatusProposed, To: StatusApproved},
	{From: StatusProposed, To: StatusRejected},
	{From: StatusDraft, To: StatusArchived},
	{From: StatusProposed, To: StatusArchived},
	{From: StatusApproved, To: StatusArchived},
	{From: StatusRejected, To: StatusArchived},
}

// StateMachine validates version status transitions.
type StateMachine struct {
	transitions []TransitionRule
}

// NewStateMachine creates a machine with the default rules.
func NewStateMachine() *StateMachine {
	return &StateMachine{transitions: DefaultTransitions}
}

// ValidateTransition checks whether from->to is allowed. Returns nil if
// allowed, a *TransitionError with a machine-readable code if not.
func (m *StateMachine) ValidateTransition(from, to VersionStatus) error {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return &TransitionError{
		Code:    "INVALID_TRANSITION",
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns all valid target statuses from the given status.
func (m *StateMachine) AllowedTransitions(from VersionStatus) []VersionStatus {
	var allowed []VersionStatus
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

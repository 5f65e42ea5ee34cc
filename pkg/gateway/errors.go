package gateway

import (
	"errors"
	"fmt"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/registry"
)

// Kind is a machine-readable failure classification. Callers branch on
// the kind; the reason string is for humans.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindDuplicateName      Kind = "DuplicateName"
	KindInvalidTransition  Kind = "InvalidTransition"
	KindIntegrityViolation Kind = "IntegrityViolation"
	KindAgentNotRegistered Kind = "AgentNotRegistered"
	KindPolicyViolation    Kind = "PolicyViolation"
	KindInvalidInput       Kind = "InvalidInput"
	KindUnknownSkill       Kind = "UnknownSkill"
	KindUpstreamTimeout    Kind = "UpstreamTimeout"
	KindInternal           Kind = "Internal"
)

// Error is the typed failure returned by every skill. It is serialized
// into the RPC error payload; raw internal errors never cross the
// boundary.
type Error struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// NewError builds a typed gateway error.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// asGatewayError maps store-level errors onto typed gateway errors. An
// unrecognized error becomes KindInternal with a generic reason so
// internals do not leak to callers.
func asGatewayError(err error) *Error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	var notFound *registry.NotFoundError
	if errors.As(err, &notFound) {
		return &Error{Kind: KindNotFound, Reason: notFound.Error()}
	}
	var dup *registry.DuplicateNameError
	if errors.As(err, &dup) {
		return &Error{Kind: KindDuplicateName, Reason: dup.Error()}
	}
	var transition *registry.TransitionError
	if errors.As(err, &transition) {
		return &Error{Kind: KindInvalidTransition, Reason: transition.Error()}
	}
	var integrity *registry.IntegrityError
	if errors.As(err, &integrity) {
		return &Error{Kind: KindIntegrityViolation, Reason: integrity.Error()}
	}

	var agentNotFound *agents.NotFoundError
	if errors.As(err, &agentNotFound) {
		return &Error{Kind: KindAgentNotRegistered, Reason: agentNotFound.Error()}
	}
	var agentTransition *agents.TransitionError
	if errors.As(err, &agentTransition) {
		return &Error{Kind: KindInvalidTransition, Reason: agentTransition.Error()}
	}
	var validation *agents.ValidationError
	if errors.As(err, &validation) {
		return &Error{Kind: KindInvalidInput, Reason: validation.Error()}
	}
	var ambiguous *agents.AmbiguousIDError
	if errors.As(err, &ambiguous) {
		// Resolvable by the caller: scope the lookup with an org.
		return &Error{Kind: KindInvalidInput, Reason: ambiguous.Error()}
	}

	return &Error{Kind: KindInternal, Reason: "internal error"}
}

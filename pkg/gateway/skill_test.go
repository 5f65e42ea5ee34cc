package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Message string `json:"message"`
}

func newEchoSkill() Skill {
	return NewSkill("echo", "Echo the message back.",
		objectSchema([]string{"message"}, map[string]any{
			"message": map[string]any{"type": "string"},
		}),
		func(_ context.Context, in echoInput) (any, error) {
			if in.Message == "" {
				return nil, NewError(KindInvalidInput, "message is required")
			}
			return map[string]string{"message": in.Message}, nil
		})
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoSkill())

	result, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"message": "hi"}, result)
}

func TestRegistry_UnknownSkill(t *testing.T) {
	r := NewRegistry()

	_, err := r.Dispatch(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Equal(t, KindUnknownSkill, asGatewayError(err).Kind)
}

func TestRegistry_MalformedInput(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoSkill())

	_, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"message":`))
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, asGatewayError(err).Kind)
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(NewSkill("b", "", nil, func(_ context.Context, _ struct{}) (any, error) { return nil, nil }))
	r.Register(NewSkill("a", "", nil, func(_ context.Context, _ struct{}) (any, error) { return nil, nil }))
	r.Register(newEchoSkill())

	var names []string
	for _, s := range r.List() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"b", "a", "echo"}, names)
}

func TestParseResourceURI(t *testing.T) {
	kind, name, ok := parseResourceURI("govern://prompts/greeting")
	require.True(t, ok)
	assert.Equal(t, "prompt", string(kind))
	assert.Equal(t, "greeting", name)

	kind, name, ok = parseResourceURI("govern://contexts/refund-policy")
	require.True(t, ok)
	assert.Equal(t, "context", string(kind))
	assert.Equal(t, "refund-policy", name)

	_, _, ok = parseResourceURI("other://contexts/x")
	assert.False(t, ok)
	_, _, ok = parseResourceURI("govern://widgets/x")
	assert.False(t, ok)
	_, _, ok = parseResourceURI("govern://prompts/")
	assert.False(t, ok)
}

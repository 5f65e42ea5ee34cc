package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderContext_JSON(t *testing.T) {
	out, err := RenderContext(`{"b":2,"a":1}`, FormatJSON)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, float64(1), parsed["a"])
	assert.Equal(t, float64(2), parsed["b"])
}

func TestRenderContext_YAML(t *testing.T) {
	out, err := RenderContext(`{"policy":{"days":30}}`, FormatYAML)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	policy, ok := parsed["policy"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 30, policy["days"])
}

func TestRenderContext_Text(t *testing.T) {
	out, err := RenderContext(`{"b":{"c":2},"a":1,"list":["x","y"]}`, FormatText)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\nb.c: 2\nlist[0]: x\nlist[1]: y\n", out)
}

func TestRenderContext_UnstructuredPassthrough(t *testing.T) {
	out, err := RenderContext("plain prose content", FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "plain prose content", out)
}

func TestRenderContext_UnsupportedFormat(t *testing.T) {
	_, err := RenderContext(`{"a":1}`, "xml")
	require.Error(t, err)
	gwErr := asGatewayError(err)
	assert.Equal(t, KindInvalidInput, gwErr.Kind)
}

func TestMergeContexts_LaterOverridesEarlier(t *testing.T) {
	merged, err := MergeContexts([]string{
		`{"shared":"from-a","only_a":1}`,
		`{"shared":"from-b","only_b":2}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-b", merged["shared"])
	assert.Equal(t, float64(1), merged["only_a"])
	assert.Equal(t, float64(2), merged["only_b"])
}

func TestMergeContexts_RejectsUnstructured(t *testing.T) {
	_, err := MergeContexts([]string{`{"a":1}`, "not json"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, asGatewayError(err).Kind)
}

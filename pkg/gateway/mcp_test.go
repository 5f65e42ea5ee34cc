package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplane/govern/pkg/ledger"
	"github.com/agentplane/govern/pkg/orgs"
	"github.com/agentplane/govern/pkg/registry"
)

func postMCP(t *testing.T, server *httptest.Server, headers map[string]string, method string, params any) MCPResponse {
	t.Helper()
	var rawParams json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		rawParams = raw
	}
	body, err := json.Marshal(MCPRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: rawParams})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mcpResp MCPResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mcpResp))
	return mcpResp
}

func TestMCP_Initialize(t *testing.T) {
	_, server := newTestServer(t)

	resp := postMCP(t, server, nil, "initialize", nil)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Equal(t, mcpProtocolVersion, result["protocolVersion"])
	serverInfo := result["serverInfo"].(map[string]any)
	assert.Equal(t, ServerName, serverInfo["name"])
}

func TestMCP_ToolsListMirrorsSkills(t *testing.T) {
	env, server := newTestServer(t)

	resp := postMCP(t, server, nil, "tools/list", nil)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	tools := result["tools"].([]any)
	assert.Len(t, tools, len(env.svc.Skills().List()))
}

func TestMCP_ToolsCall(t *testing.T) {
	env, server := newTestServer(t)
	ctx := testCtx()

	agent := env.registerApprovedAgent(t, ctx, "bot-1")
	env.createApprovedContext(t, ctx, "refund-policy", `{"days":30}`, agent)

	headers := map[string]string{orgs.OrgHeader: "acme"}
	resp := postMCP(t, server, headers, "tools/call", MCPToolCallParams{
		Name: "get_context",
		Arguments: map[string]any{
			"name":        "refund-policy",
			"sourceAgent": "bot-1",
		},
	})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result MCPToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "30")

	assert.EqualValues(t, 1, env.countEvents(t, ledger.ActionContextDelivered))
	assert.EqualValues(t, 1, env.countEvents(t, ledger.ActionProtocolCall))
}

func TestMCP_ToolsCallSkillFailureIsToolError(t *testing.T) {
	_, server := newTestServer(t)

	resp := postMCP(t, server, map[string]string{orgs.OrgHeader: "acme"}, "tools/call", MCPToolCallParams{
		Name:      "get_prompt",
		Arguments: map[string]any{"name": "missing"},
	})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result MCPToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, string(KindNotFound))
}

func TestMCP_ResourcesListAndRead(t *testing.T) {
	env, server := newTestServer(t)
	ctx := testCtx()

	agent := env.registerApprovedAgent(t, ctx, "bot-1")
	env.createApprovedContext(t, ctx, "refund-policy", `{"days":30}`, agent)

	promptRes, err := env.svc.Resources.CreateResource(registry.KindPrompt, "greeting", "", nil, "", "operator")
	require.NoError(t, err)
	_, err = env.svc.Versions.ProposeVersion(registry.ProposeInput{
		ResourceID:  promptRes.ID,
		Content:     "Hello {{name}}",
		CreatedBy:   "operator",
		AutoApprove: true,
	})
	require.NoError(t, err)

	resp := postMCP(t, server, nil, "resources/list", nil)
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var listing struct {
		Resources []MCPResourceInfo `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(raw, &listing))

	uris := make(map[string]bool)
	for _, r := range listing.Resources {
		uris[r.URI] = true
	}
	assert.True(t, uris["govern://prompts/greeting"])
	assert.True(t, uris["govern://contexts/refund-policy"])

	// Context read runs the full gated delivery path for the caller
	// principal.
	headers := map[string]string{orgs.OrgHeader: "acme", PrincipalHeader: "bot-1"}
	resp = postMCP(t, server, headers, "resources/read", map[string]string{"uri": "govern://contexts/refund-policy"})
	require.Nil(t, resp.Error)
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var contents struct {
		Contents []MCPResourceContents `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(raw, &contents))
	require.Len(t, contents.Contents, 1)
	assert.Contains(t, contents.Contents[0].Text, "30")
	assert.EqualValues(t, 1, env.countEvents(t, ledger.ActionContextDelivered))

	// An unregistered principal is rejected before the policy gate runs,
	// so no denial row is written.
	resp = postMCP(t, server, map[string]string{orgs.OrgHeader: "acme"}, "resources/read", map[string]string{"uri": "govern://contexts/refund-policy"})
	require.NotNil(t, resp.Error)
	assert.EqualValues(t, 0, env.countEvents(t, ledger.ActionContextDenied))
}

func TestMCP_UnknownMethod(t *testing.T) {
	_, server := newTestServer(t)

	resp := postMCP(t, server, nil, "prompts/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/ledger"
	"github.com/agentplane/govern/pkg/orgs"
)

func newTestServer(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := newTestEnv(t)

	auth, err := NewAuthenticator(AuthenticatorConfig{})
	require.NoError(t, err)

	server := httptest.NewServer(env.svc.MountRoutes(auth, orgs.ModeHeader))
	t.Cleanup(server.Close)
	return env, server
}

func postRPC(t *testing.T, server *httptest.Server, headers map[string]string, method string, params any) RPCResponse {
	t.Helper()
	rawParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: rawParams})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return rpcResp
}

func TestRPC_EndToEndDeliveryFlow(t *testing.T) {
	env, server := newTestServer(t)
	headers := map[string]string{
		orgs.OrgHeader:  "acme",
		PrincipalHeader: "operator",
		TraceHeader:     "trace-http-1",
	}

	resp := postRPC(t, server, headers, "register", agents.Manifest{
		AgentID: "bot-1", Version: "1.0.0", OwnerTeam: "support", URL: "http://bot-1.internal",
	})
	require.Nil(t, resp.Error)

	resp = postRPC(t, server, headers, "approve_agent", agentActionInput{AgentID: "bot-1"})
	require.Nil(t, resp.Error)

	resp = postRPC(t, server, headers, "create_resource", createResourceInput{Kind: "context", Name: "refund-policy"})
	require.Nil(t, resp.Error)

	resp = postRPC(t, server, headers, "propose_version", proposeVersionInput{
		Kind: "context", Name: "refund-policy", Content: `{"days":30}`, AutoApprove: true,
	})
	require.Nil(t, resp.Error)

	resp = postRPC(t, server, headers, "grant_access", accessInput{AgentID: "bot-1", Name: "refund-policy"})
	require.Nil(t, resp.Error)

	resp = postRPC(t, server, headers, "get_context", getContextInput{Name: "refund-policy", SourceAgent: "bot-1", Intent: "support reply"})
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Contains(t, result["content"], "30")

	var delivery ledger.EventRecord
	require.NoError(t, env.db.Where("action_type = ?", string(ledger.ActionContextDelivered)).First(&delivery).Error)
	assert.Equal(t, "trace-http-1", delivery.TraceID)

	// One protocol_call entry per RPC above, plus the implicit approval
	// recorded for the auto-approved proposal.
	assert.EqualValues(t, 7, env.countEvents(t, ledger.ActionProtocolCall))

	var implicit ledger.EventRecord
	require.NoError(t, env.db.Where("skill_name = ?", "approve_version").First(&implicit).Error)
	assert.Equal(t, true, implicit.Metadata["implicit"])
}

func TestRPC_ErrorShapes(t *testing.T) {
	_, server := newTestServer(t)
	headers := map[string]string{orgs.OrgHeader: "acme"}

	resp := postRPC(t, server, headers, "no_such_skill", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	assert.Equal(t, string(KindUnknownSkill), resp.Error.Data.(map[string]any)["kind"])

	resp = postRPC(t, server, headers, "get_context", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = postRPC(t, server, headers, "get_prompt", getPromptInput{Name: "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeAppError, resp.Error.Code)
	assert.Equal(t, string(KindNotFound), resp.Error.Data.(map[string]any)["kind"])
}

func TestRPC_MalformedBody(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Post(server.URL+"/rpc", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCapabilityCard(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card CapabilityCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, ServerName, card.Name)
	assert.Equal(t, "bearer", card.Auth.Scheme)

	names := make(map[string]bool)
	for _, skill := range card.Skills {
		names[skill.Name] = true
		assert.NotEmpty(t, skill.Description, "skill %s has no description", skill.Name)
	}
	for _, required := range []string{
		"get_prompt", "get_context", "list_prompts", "list_contexts",
		"compose_contexts", "validate_context", "get_approved_context",
		"validate_agent", "audit_log", "report_incident", "register",
		"get_lineage", "mcp_poll_agent", "create_resource", "propose_version",
		"approve_version", "reject_version", "archive_version", "verify_integrity",
		"list_versions", "approve_agent", "reject_agent", "grant_access", "revoke_access",
	} {
		assert.True(t, names[required], "capability card is missing %s", required)
	}
}

func TestLedgerReadAPI(t *testing.T) {
	env, server := newTestServer(t)
	ctx := testCtx()

	agent := env.registerApprovedAgent(t, ctx, "bot-1")
	env.createApprovedContext(t, ctx, "refund-policy", `{"days":30}`, agent)
	env.mustCall(t, ctx, "get_context", getContextInput{Name: "refund-policy", SourceAgent: "bot-1"})

	resp, err := http.Get(server.URL + "/api/ledger/lineage?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Events []eventView `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Events, 1)
	assert.Equal(t, "bot-1", payload.Events[0].AgentID)

	blockedResp, err := http.Get(server.URL + "/api/ledger/blocked")
	require.NoError(t, err)
	blockedResp.Body.Close()
	assert.Equal(t, http.StatusOK, blockedResp.StatusCode)

	eventsResp, err := http.Get(server.URL + "/api/ledger/events?pageSize=10")
	require.NoError(t, err)
	eventsResp.Body.Close()
	assert.Equal(t, http.StatusOK, eventsResp.StatusCode)
}

func TestHealthz(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

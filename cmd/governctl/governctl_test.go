package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentplane/govern/pkg/gateway"
	"github.com/agentplane/govern/pkg/orgs"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"this string is too long", 10, "this st..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestListSkillFor(t *testing.T) {
	for in, want := range map[string]string{
		"prompt":   "list_prompts",
		"prompts":  "list_prompts",
		"context":  "list_contexts",
		"contexts": "list_contexts",
	} {
		got, err := listSkillFor(in)
		if err != nil {
			t.Fatalf("listSkillFor(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("listSkillFor(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := listSkillFor("model"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCallSkillSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req gateway.RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Method != "validate_agent" {
			t.Errorf("method = %q, want validate_agent", req.Method)
		}
		json.NewEncoder(w).Encode(gateway.RPCResponse{
			Jsonrpc: "2.0",
			ID:      req.ID,
			Result:  map[string]any{"registered": true},
		})
	}))
	defer server.Close()

	oldURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldURL }()

	var result struct {
		Registered bool `json:"registered"`
	}
	client := newClient()
	if err := client.callSkill("validate_agent", map[string]any{"agentId": "bot-1"}, &result); err != nil {
		t.Fatalf("callSkill: %v", err)
	}
	if !result.Registered {
		t.Error("expected registered=true")
	}
}

func TestCallSkillErrorIncludesKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gateway.RPCResponse{
			Jsonrpc: "2.0",
			ID:      1,
			Error: &gateway.RPCError{
				Code:    -32000,
				Message: `context "missing" has no approved version`,
				Data:    map[string]any{"kind": "not_found"},
			},
		})
	}))
	defer server.Close()

	oldURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldURL }()

	err := newClient().callSkill("get_context", map[string]any{"name": "missing"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "not_found") {
		t.Errorf("error %q should carry the failure kind", err)
	}
}

func TestClientSendsOrgAndPrincipalHeaders(t *testing.T) {
	var gotOrg, gotPrincipal string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = r.Header.Get(orgs.OrgHeader)
		gotPrincipal = r.Header.Get(gateway.PrincipalHeader)
		json.NewEncoder(w).Encode(gateway.RPCResponse{Jsonrpc: "2.0", ID: 1, Result: map[string]any{}})
	}))
	defer server.Close()

	oldURL, oldOrg, oldPrincipal := serverURL, orgName, principal
	serverURL, orgName, principal = server.URL, "acme", "operator"
	defer func() { serverURL, orgName, principal = oldURL, oldOrg, oldPrincipal }()

	if err := newClient().callSkill("get_lineage", map[string]any{}, nil); err != nil {
		t.Fatalf("callSkill: %v", err)
	}
	if gotOrg != "acme" {
		t.Errorf("org header = %q, want acme", gotOrg)
	}
	if gotPrincipal != "operator" {
		t.Errorf("principal header = %q, want operator", gotPrincipal)
	}
}

func TestClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	oldURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldURL }()

	err := newClient().getJSON("/api/ledger/lineage", &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q should include the status code", err)
	}
}

func TestResolvedOrg(t *testing.T) {
	oldOrg := orgName
	defer func() { orgName = oldOrg }()

	orgName = "from-flag"
	t.Setenv("GOVERN_ORG", "from-env")
	if got := resolvedOrg(); got != "from-flag" {
		t.Errorf("resolvedOrg() = %q, want from-flag", got)
	}

	orgName = ""
	if got := resolvedOrg(); got != "from-env" {
		t.Errorf("resolvedOrg() = %q, want from-env", got)
	}
}

func TestResolvedPrincipal(t *testing.T) {
	oldPrincipal := principal
	defer func() { principal = oldPrincipal }()

	principal = ""
	t.Setenv("GOVERN_PRINCIPAL", "svc-governctl")
	if got := resolvedPrincipal(); got != "svc-governctl" {
		t.Errorf("resolvedPrincipal() = %q, want svc-governctl", got)
	}
}

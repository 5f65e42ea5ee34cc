package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentplane/govern/pkg/gateway"
	"github.com/agentplane/govern/pkg/orgs"
)

type governClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *governClient {
	return &governClient{
		baseURL: serverURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *governClient) setHeaders(req *http.Request) {
	if org := resolvedOrg(); org != "" {
		req.Header.Set(orgs.OrgHeader, org)
	}
	if who := resolvedPrincipal(); who != "" {
		req.Header.Set(gateway.PrincipalHeader, who)
	}
}

// callSkill invokes a named skill over the RPC endpoint and decodes its
// result into v (which may be nil).
func (c *governClient) callSkill(skill string, params any, v any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	body, err := json.Marshal(gateway.RPCRequest{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  skill,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}

	var envelope struct {
		Result json.RawMessage   `json:"result"`
		Error  *gateway.RPCError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	if envelope.Error != nil {
		if data, ok := envelope.Error.Data.(map[string]any); ok {
			if kind, ok := data["kind"]; ok {
				return fmt.Errorf("%s failed (%v): %s", skill, kind, envelope.Error.Message)
			}
		}
		return fmt.Errorf("%s failed: %s", skill, envelope.Error.Message)
	}

	if v != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, v)
	}
	return nil
}

// callRaw invokes a skill and returns the result as a generic map.
func (c *governClient) callRaw(skill string, params any) (map[string]any, error) {
	var result map[string]any
	if err := c.callSkill(skill, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// getJSON performs a GET request against a read API path and decodes the
// response.
func (c *governClient) getJSON(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentplane/govern/pkg/registry"
)

// URIScheme namespaces MCP resource URIs: govern://prompts/<name> and
// govern://contexts/<name>.
const URIScheme = "govern"

// mcpProtocolVersion is the protocol revision reported by initialize.
const mcpProtocolVersion = "2024-11-05"

// mcpHandler serves the MCP tool surface on POST /mcp. Tool calls route
// through the same skill registry, policy gate, and ledger as the RPC
// surface.
func (s *Service) mcpHandler(w http.ResponseWriter, r *http.Request) {
	var req MCPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, MCPResponse{
			Jsonrpc: "2.0",
			Error:   &MCPError{Code: -32700, Message: "parse error"},
		})
		return
	}

	resp := MCPResponse{Jsonrpc: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{"name": ServerName, "version": s.Version},
		}
	case "tools/list":
		resp.Result = map[string]any{"tools": s.toolInfos()}
	case "tools/call":
		resp.Result, resp.Error = s.callTool(r.Context(), req.Params)
	case "resources/list":
		result, err := s.listMCPResources()
		if err != nil {
			resp.Error = &MCPError{Code: codeInternalError, Message: "failed to list resources"}
		} else {
			resp.Result = result
		}
	case "resources/read":
		resp.Result, resp.Error = s.readMCPResource(r.Context(), req.Params)
	default:
		resp.Error = &MCPError{Code: codeMethodNotFound, Message: "unknown method " + req.Method}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) toolInfos() []MCPToolInfo {
	skills := s.registry.List()
	tools := make([]MCPToolInfo, 0, len(skills))
	for _, skill := range skills {
		tools = append(tools, MCPToolInfo{
			Name:        skill.Name(),
			Description: skill.Description(),
			InputSchema: skill.InputSchema(),
		})
	}
	return tools
}

// callTool dispatches an MCP tool call through the skill registry. Skill
// failures become error-flagged tool results; only malformed params are
// protocol errors.
func (s *Service) callTool(ctx context.Context, params json.RawMessage) (any, *MCPError) {
	var call MCPToolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &MCPError{Code: codeInvalidParams, Message: "invalid tools/call params"}
	}
	if call.Name == "" {
		return nil, &MCPError{Code: codeInvalidParams, Message: "tool name is required"}
	}

	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, &MCPError{Code: codeInvalidParams, Message: "invalid tool arguments"}
	}

	result, gwErr := s.invoke(ctx, call.Name, args)
	if gwErr != nil {
		payload, _ := json.Marshal(gwErr)
		return MCPToolResult{
			Content: []MCPContent{{Type: "text", Text: string(payload)}},
			IsError: true,
		}, nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, &MCPError{Code: codeInternalError, Message: "failed to serialize tool result"}
	}
	return MCPToolResult{Content: []MCPContent{{Type: "text", Text: string(payload)}}}, nil
}

func (s *Service) listMCPResources() (any, error) {
	var resources []MCPResourceInfo

	prompts, _, err := s.Resources.ListResources(registry.KindPrompt, "", 500, "")
	if err != nil {
		return nil, err
	}
	for _, p := range prompts {
		resources = append(resources, MCPResourceInfo{
			URI:         URIScheme + "://prompts/" + p.Name,
			Name:        p.Name,
			Description: p.Description,
			MimeType:    "text/plain",
		})
	}

	contexts, _, err := s.Resources.ListResources(registry.KindContext, "", 500, "")
	if err != nil {
		return nil, err
	}
	for _, c := range contexts {
		resources = append(resources, MCPResourceInfo{
			URI:         URIScheme + "://contexts/" + c.Name,
			Name:        c.Name,
			Description: c.Description,
			MimeType:    "application/json",
		})
	}

	return map[string]any{"resources": resources}, nil
}

// readMCPResource reads a governed resource by URI. Context reads pass
// through the full delivery path (policy gate plus ledger), with the
// authenticated principal as the source agent.
func (s *Service) readMCPResource(ctx context.Context, params json.RawMessage) (any, *MCPError) {
	var in struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &in); err != nil || in.URI == "" {
		return nil, &MCPError{Code: codeInvalidParams, Message: "uri is required"}
	}

	kind, name, ok := parseResourceURI(in.URI)
	if !ok {
		return nil, &MCPError{Code: codeInvalidParams, Message: "unsupported resource uri " + in.URI}
	}

	switch kind {
	case registry.KindPrompt:
		delivery, err := s.deliverPrompt(ctx, name, nil, "", "")
		if err != nil {
			return nil, toMCPError(err)
		}
		return map[string]any{"contents": []MCPResourceContents{{
			URI:      in.URI,
			MimeType: "text/plain",
			Text:     delivery.Content,
		}}}, nil
	default:
		principal := CallerFromContext(ctx).Principal
		delivery, err := s.deliverContext(ctx, name, principal, "mcp resource read", FormatJSON)
		if err != nil {
			return nil, toMCPError(err)
		}
		return map[string]any{"contents": []MCPResourceContents{{
			URI:      in.URI,
			MimeType: "application/json",
			Text:     delivery.Content,
		}}}, nil
	}
}

// parseResourceURI splits govern://prompts/<name> or
// govern://contexts/<name> into kind and name.
func parseResourceURI(uri string) (registry.ResourceKind, string, bool) {
	rest, ok := strings.CutPrefix(uri, URIScheme+"://")
	if !ok {
		return "", "", false
	}
	collection, name, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return "", "", false
	}
	switch collection {
	case "prompts":
		return registry.KindPrompt, name, true
	case "contexts":
		return registry.KindContext, name, true
	default:
		return "", "", false
	}
}

func toMCPError(err error) *MCPError {
	gwErr := asGatewayError(err)
	code := codeAppError
	switch gwErr.Kind {
	case KindInvalidInput:
		code = codeInvalidParams
	case KindInternal:
		code = codeInternalError
	}
	return &MCPError{Code: code, Message: gwErr.Reason, Data: map[string]any{"kind": gwErr.Kind}}
}

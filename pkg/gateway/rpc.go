package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentplane/govern/pkg/orgs"
)

// cardCacheKey is the discovery cache key for the capability card.
const cardCacheKey = "capability-card"

// MountRoutes creates the HTTP router for the full gateway surface: the
// skill RPC endpoint, the MCP tool endpoint, discovery, the ledger read
// API, and health.
func (s *Service) MountRoutes(auth *Authenticator, orgMode orgs.Mode) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", orgs.OrgHeader, PrincipalHeader, TraceHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(orgs.NewMiddleware(orgMode))
	r.Use(auth.Middleware)

	r.Post("/rpc", s.rpcHandler)
	r.Post("/mcp", s.mcpHandler)
	r.Get("/.well-known/agent.json", s.cardHandler)
	r.Mount("/api/ledger", s.ledgerRoutes())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// rpcHandler serves JSON-RPC-shaped skill invocations on POST /rpc. The
// method field names the skill; params carry its input object.
func (s *Service) rpcHandler(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, RPCResponse{
			Jsonrpc: "2.0",
			Error:   &RPCError{Code: -32700, Message: "parse error"},
		})
		return
	}
	if req.Method == "" {
		writeJSON(w, http.StatusOK, RPCResponse{
			Jsonrpc: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: codeInvalidParams, Message: "method is required", Data: map[string]any{"kind": KindInvalidInput}},
		})
		return
	}

	result, gwErr := s.invoke(r.Context(), req.Method, req.Params)
	resp := RPCResponse{Jsonrpc: "2.0", ID: req.ID}
	if gwErr != nil {
		resp.Error = toRPCError(gwErr)
	} else {
		resp.Result = result
	}
	writeJSON(w, http.StatusOK, resp)
}

// toRPCError maps a typed gateway error onto the JSON-RPC error object.
// The kind travels in the data field so callers can branch on it.
func toRPCError(err *Error) *RPCError {
	code := codeAppError
	switch err.Kind {
	case KindUnknownSkill:
		code = codeMethodNotFound
	case KindInvalidInput:
		code = codeInvalidParams
	case KindInternal:
		code = codeInternalError
	}
	return &RPCError{
		Code:    code,
		Message: err.Reason,
		Data:    map[string]any{"kind": err.Kind},
	}
}

// cardHandler serves the discovery capability card. The card is built
// from the skill registry and cached; registration order keeps it stable.
func (s *Service) cardHandler(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.Cache.Get(cardCacheKey); ok {
		if card, ok := cached.(*CapabilityCard); ok {
			writeJSON(w, http.StatusOK, card)
			return
		}
	}

	skills := s.registry.List()
	card := &CapabilityCard{
		Name:        ServerName,
		Version:     s.Version,
		Description: "Governance gateway for versioned, approval-gated agent content.",
		Auth:        CardAuth{Scheme: "bearer"},
		Skills:      make([]CardSkill, 0, len(skills)),
	}
	for _, skill := range skills {
		card.Skills = append(card.Skills, CardSkill{
			Name:        skill.Name(),
			Description: skill.Description(),
			InputSchema: skill.InputSchema(),
		})
	}

	s.Cache.Set(cardCacheKey, card)
	writeJSON(w, http.StatusOK, card)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": http.StatusText(status), "message": message})
}

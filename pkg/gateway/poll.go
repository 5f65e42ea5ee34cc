package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Poller performs outbound tool-listing calls against remote agents. It
// is the only gateway path that blocks on a remote network call, so
// every poll runs under a hard deadline and failure degrades to a result
// carrying an error field rather than aborting the caller's request.
type Poller struct {
	client         *http.Client
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	logger         *slog.Logger
}

// NewPoller creates a Poller with the given timeout bounds.
func NewPoller(defaultTimeout, maxTimeout time.Duration, logger *slog.Logger) *Poller {
	if defaultTimeout <= 0 {
		defaultTimeout = 3 * time.Second
	}
	if maxTimeout < defaultTimeout {
		maxTimeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:         &http.Client{},
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
		logger:         logger,
	}
}

// PollResult is the outcome of polling a remote agent. On failure only
// Error (and ErrorKind) are populated. Fresh is true when the result
// came from a live probe rather than the cache.
type PollResult struct {
	URL       string        `json:"url,omitempty"`
	Tools     []MCPToolInfo `json:"tools,omitempty"`
	Fresh     bool          `json:"fresh"`
	Error     string        `json:"error,omitempty"`
	ErrorKind Kind          `json:"error_kind,omitempty"`
}

// Poll lists the tools exposed by a remote agent's MCP endpoint. It
// probes the given URL and, when that fails, the conventional /mcp
// suffix. timeout is clamped to the configured maximum; zero means the
// default.
func (p *Poller) Poll(ctx context.Context, url string, timeout time.Duration) PollResult {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	if timeout > p.maxTimeout {
		timeout = p.maxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for _, candidate := range candidateEndpoints(url) {
		tools, err := p.listTools(ctx, candidate)
		if err == nil {
			return PollResult{URL: candidate, Tools: tools, Fresh: true}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	kind := KindInternal
	if errors.Is(lastErr, context.DeadlineExceeded) || ctx.Err() != nil {
		kind = KindUpstreamTimeout
	}
	p.logger.Warn("agent poll failed", "url", url, "error", lastErr)
	return PollResult{Fresh: true, Error: fmt.Sprintf("polling %s: %v", url, lastErr), ErrorKind: kind}
}

// candidateEndpoints returns the endpoints to probe for a base URL: the
// URL as given, then the conventional /mcp path.
func candidateEndpoints(url string) []string {
	trimmed := strings.TrimRight(url, "/")
	if strings.HasSuffix(trimmed, "/mcp") {
		return []string{trimmed}
	}
	return []string{trimmed, trimmed + "/mcp"}
}

func (p *Poller) listTools(ctx context.Context, url string) ([]MCPToolInfo, error) {
	body, err := json.Marshal(MCPRequest{Jsonrpc: "2.0", ID: 1, Method: "tools/list"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result struct {
			Tools []MCPToolInfo `json:"tools"`
		} `json:"result"`
		Error *MCPError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decoding tools/list response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("remote error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result.Tools, nil
}

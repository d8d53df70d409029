package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const mcpProtocolVersion = "2024-11-05"

// MCPClient queries a Model Context Protocol knowledge server over HTTP
// JSON-RPC 2.0.
type MCPClient struct {
	url       string
	name      string
	version   string
	requestID int
	http      *http.Client
	logger    zerolog.Logger
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      *int        `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewMCPClient performs the MCP handshake against url and returns a ready
// client. A handshake failure is a setup error: the caller decides whether
// the engine can run without advisory knowledge.
func NewMCPClient(ctx context.Context, url, clientName, clientVersion string, logger zerolog.Logger) (*MCPClient, error) {
	c := &MCPClient{
		url:     url,
		name:    clientName,
		version: clientVersion,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}

	if _, err := c.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": mcpProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]string{"name": clientName, "version": clientVersion},
	}); err != nil {
		return nil, fmt.Errorf("MCP handshake failed: %w", err)
	}

	// Fire-and-forget per the protocol; errors here don't invalidate the
	// session.
	c.notify(ctx, "notifications/initialized")

	raw, err := c.call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("MCP tools/list failed: %w", err)
	}
	var tools struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &tools); err == nil {
		logger.Info().Int("tools", len(tools.Tools)).Msg("connected to knowledge base")
	}

	return c, nil
}

// Search runs the server's "search" tool. Errors degrade to an empty result
// set; the engine continues without guidance.
func (c *MCPClient) Search(ctx context.Context, query string, topK int) ([]Excerpt, error) {
	raw, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      "search",
		"arguments": map[string]interface{}{"query": query, "top_k": topK},
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("knowledge search failed")
		return nil, err
	}

	var result struct {
		IsError bool      `json:"isError"`
		Content []Excerpt `json:"content"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search result: %w", err)
	}
	if result.IsError {
		c.logger.Warn().Str("query", query).Msg("knowledge search returned error result")
		return nil, nil
	}
	return result.Content, nil
}

func (c *MCPClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.requestID
	c.requestID++

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func (c *MCPClient) notify(ctx context.Context, method string) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if resp, err := c.http.Do(req); err == nil {
		resp.Body.Close()
	}
}

// ABOUTME: JSON-RPC 2.0 MCP endpoint served over plain HTTP POST
// ABOUTME: Stateless request handling with gateway-key check and per-call credential resolution

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/monarch-gateway/internal/auth"
	"github.com/2389/monarch-gateway/internal/config"
	"github.com/2389/monarch-gateway/internal/monarch"
	"github.com/2389/monarch-gateway/internal/tools"
)

// protocolVersion is advertised in initialize responses. The endpoint is
// stateless, so the oldest Streamable HTTP revision is the honest claim.
const protocolVersion = "2025-03-26"

const (
	serverName    = "monarch-gateway"
	serverVersion = "1.0.0"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, plus the implementation-defined codes this
// server uses in the reserved server range.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603

	// JSONRPCUpstreamError covers failures talking to Monarch Money: login
	// rejections, expired sessions, GraphQL errors, transport faults.
	JSONRPCUpstreamError = -32000
	// JSONRPCUnauthorized covers missing upstream credentials and gateway
	// key failures.
	JSONRPCUnauthorized = -32001
)

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// errNoCredentials is the answer to a tools/call that resolved neither
// caller-supplied nor fallback upstream credentials. The message doubles as
// encoding guidance for the caller.
var errNoCredentials = errors.New("upstream credentials required: send base64-encoded JSON {\"email\",\"password\"} as a bearer Authorization header, or configure fallback credentials on the gateway")

// mcpServer handles the /mcp endpoint. It holds no per-client state: every
// request is authenticated and resolved on its own.
type mcpServer struct {
	cfg      *config.Config
	registry *tools.Registry
	fallback *auth.Credentials
	logger   *slog.Logger
}

// handleMCP is the single MCP endpoint. Only POST carries JSON-RPC; the
// transport's GET stream is not supported.
func (s *mcpServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handlePost(w, r)
}

// handlePost processes one JSON-RPC message.
func (s *mcpServer) handlePost(w http.ResponseWriter, r *http.Request) {
	// Gateway key gate comes before any parsing. A failed check is an HTTP
	// 401 carrying a JSON-RPC error body so MCP clients surface it cleanly.
	if !auth.KeyMatches(s.cfg.Auth.GatewayKey, auth.PresentedKey(r)) {
		s.logger.Warn("rejected request with bad gateway key", "remote_addr", r.RemoteAddr)
		s.sendJSONRPCErrorStatus(w, http.StatusUnauthorized, nil, JSONRPCUnauthorized, "invalid or missing gateway key", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}
	if req.Method == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "method is required", nil)
		return
	}

	// A message without an id member is a notification. An explicit
	// "id": null is not: it gets a normal response echoing the null.
	if len(req.ID) == 0 {
		s.logger.Debug("accepted notification", "method", req.Method)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize answers the MCP handshake. There is no session to create;
// the announcement is static.
func (s *mcpServer) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsList handles tools/list requests.
func (s *mcpServer) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	result := ListToolsResult{Tools: s.registry.Descriptors()}

	s.logger.Debug("tools/list", "count", len(result.Tools))

	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsCall handles tools/call requests.
func (s *mcpServer) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}

	if params.Name == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	creds, source := auth.Resolve(r.Header.Get("Authorization"), s.fallback)
	if creds == nil {
		s.sendJSONRPCError(w, req.ID, JSONRPCUnauthorized, errNoCredentials.Error(), nil)
		return
	}

	// Generate a request ID for log correlation
	requestID := uuid.New().String()

	s.logger.Debug("tools/call",
		"tool_name", params.Name,
		"request_id", requestID,
		"credential_source", source,
		"credentials", creds,
	)

	client := monarch.New(monarch.Config{
		BaseURL: s.cfg.Upstream.BaseURL,
		Timeout: s.cfg.Upstream.Timeout,
		Logger:  s.logger,
	}, creds)

	result, err := s.registry.Call(r.Context(), client, params.Name, params.Arguments)
	if err != nil {
		s.handleToolError(w, req.ID, params.Name, requestID, err)
		return
	}

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"request_id", requestID,
	)

	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolError maps tool and upstream failures onto JSON-RPC error codes.
// Caller mistakes keep their full message; unexpected internal failures are
// collapsed to a generic message unless debug mode is on.
func (s *mcpServer) handleToolError(w http.ResponseWriter, id json.RawMessage, toolName, requestID string, err error) {
	s.logger.Warn("tool call failed",
		"tool_name", toolName,
		"request_id", requestID,
		"error", err,
	)

	var unknownTool *tools.UnknownToolError
	var badArgs *tools.ArgumentError
	var badRange *monarch.DateRangeError
	var loginErr *monarch.LoginError
	var opErr *monarch.OperationError
	var transportErr *monarch.TransportError

	code := JSONRPCInternalError
	message := "internal error"

	switch {
	case errors.As(err, &unknownTool),
		errors.As(err, &badArgs),
		errors.As(err, &badRange):
		code = JSONRPCInvalidParams
		message = err.Error()
	case errors.Is(err, monarch.ErrMFARequired),
		errors.Is(err, monarch.ErrAuthExpired),
		errors.As(err, &loginErr),
		errors.As(err, &opErr),
		errors.As(err, &transportErr):
		code = JSONRPCUpstreamError
		message = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		code = JSONRPCUpstreamError
		message = "upstream call timed out"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	default:
		if s.cfg.Server.Debug {
			message = err.Error()
		}
	}

	s.sendJSONRPCError(w, id, code, message, nil)
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *mcpServer) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// sendJSONRPCError sends a JSON-RPC error response with HTTP 200.
func (s *mcpServer) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	s.sendJSONRPCErrorStatus(w, http.StatusOK, id, code, message, data)
}

// sendJSONRPCErrorStatus sends a JSON-RPC error response with the given HTTP
// status. A nil id marshals as null, which is what the protocol requires
// when the request id could not be read.
func (s *mcpServer) sendJSONRPCErrorStatus(w http.ResponseWriter, httpStatus int, id json.RawMessage, code int, message string, data any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if httpStatus != http.StatusOK {
		w.WriteHeader(httpStatus)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}

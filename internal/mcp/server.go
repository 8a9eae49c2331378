// ABOUTME: MCP JSON-RPC dispatcher and its HTTP transport for AI tool clients.
// ABOUTME: Routes methods through a table that marks which ones need bearer authentication.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// DefaultPublicURL is the issuer advertised by the discovery document.
const DefaultPublicURL = "https://www.polydev.ai"

// ErrInternal is returned by Handle when dispatch panicked.
var ErrInternal = errors.New("internal error")

// Authenticator resolves an Authorization header to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (*auth.Principal, error)
}

// Config holds configuration for the MCP server.
type Config struct {
	Authenticator Authenticator
	Tools         *ToolRegistry
	// Observer defaults to a slog observer on Logger.
	Observer  Observer
	Logger    *slog.Logger
	Version   string
	PublicURL string
}

// rpcError is a handler failure with an explicit JSON-RPC code.
type rpcError struct {
	code    int
	message string
}

func (e *rpcError) Error() string { return e.message }

// methodSpec is one row of the dispatch table.
type methodSpec struct {
	requiresAuth bool
	notification bool
	handle       func(ctx context.Context, req *JSONRPCRequest, principal *auth.Principal) (any, error)
}

// Server implements the MCP JSON-RPC endpoint.
type Server struct {
	authn     Authenticator
	tools     *ToolRegistry
	observer  Observer
	logger    *slog.Logger
	version   string
	discovery oauthMetadata
	methods   map[string]methodSpec
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tool registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NewLogObserver(logger)
	}
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = DefaultPublicURL
	}

	s := &Server{
		authn:     cfg.Authenticator,
		tools:     cfg.Tools,
		observer:  observer,
		logger:    logger,
		version:   version,
		discovery: newOAuthMetadata(publicURL),
	}
	s.methods = map[string]methodSpec{
		"initialize":     {handle: s.initialize},
		"initialized":    {notification: true},
		"tools/list":     {handle: s.listTools},
		"tools/call":     {requiresAuth: true, handle: s.callTool},
		"resources/list": {handle: listResources},
		"prompts/list":   {handle: listPrompts},
	}
	return s, nil
}

// Handle dispatches one request. It returns a nil response for notifications.
// The error is non-nil only when the transport must change its status: an
// *auth.AuthError for rejected credentials, or ErrInternal after a recovered panic.
// In both cases resp still carries the JSON-RPC error envelope.
func (s *Server) Handle(ctx context.Context, req *JSONRPCRequest, authHeader string) (resp *JSONRPCResponse, err error) {
	start := time.Now()
	s.observer.OnRequest(ctx, req.Method, req.ID, authHeader != "")

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in MCP dispatch",
				"method", req.Method,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = errorResponse(req.ID, JSONRPCInternalError, "Internal error", fmt.Sprint(r))
			err = ErrInternal
		}
		s.observer.OnResponse(ctx, req.Method, resp, time.Since(start))
	}()

	method, ok := s.methods[req.Method]
	if !ok {
		if strings.HasPrefix(req.Method, "notifications/") {
			return nil, nil
		}
		return errorResponse(req.ID, JSONRPCMethodNotFound, "Method not found: "+req.Method, nil), nil
	}
	if method.notification {
		return nil, nil
	}

	var principal *auth.Principal
	if method.requiresAuth {
		principal, err = s.authn.Authenticate(ctx, authHeader)
		if err != nil {
			var authErr *auth.AuthError
			if !errors.As(err, &authErr) {
				authErr = &auth.AuthError{Kind: auth.KindLookupFailed, Message: "Authentication failed", Err: err}
			}
			return errorResponse(req.ID, JSONRPCInvalidParams, authErr.Message, nil), authErr
		}
		ctx = auth.WithPrincipal(ctx, principal)
	}

	result, herr := method.handle(ctx, req, principal)
	if herr != nil {
		var re *rpcError
		if errors.As(herr, &re) {
			return errorResponse(req.ID, re.code, re.message, nil), nil
		}
		return errorResponse(req.ID, JSONRPCInternalError, herr.Error(), nil), nil
	}
	return resultResponse(req.ID, result), nil
}

func (s *Server) initialize(_ context.Context, req *JSONRPCRequest, _ *auth.Principal) (any, error) {
	var params InitializeParams
	if len(req.Params) > 0 {
		// Malformed params fall back to the default version, never an error.
		_ = json.Unmarshal(req.Params, &params)
	}
	version := params.ProtocolVersion
	if version == "" {
		version = DefaultProtocolVersion
	}

	return InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      ServerInfo{Name: ServerName, Version: s.version},
	}, nil
}

func (s *Server) listTools(context.Context, *JSONRPCRequest, *auth.Principal) (any, error) {
	return MCPListToolsResult{Tools: s.tools.List()}, nil
}

func listResources(context.Context, *JSONRPCRequest, *auth.Principal) (any, error) {
	return MCPListResourcesResult{Resources: []any{}}, nil
}

func listPrompts(context.Context, *JSONRPCRequest, *auth.Principal) (any, error) {
	return MCPListPromptsResult{Prompts: []any{}}, nil
}

func (s *Server) callTool(ctx context.Context, req *JSONRPCRequest, principal *auth.Principal) (any, error) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{code: JSONRPCInvalidParams, message: "Invalid params"}
		}
	}

	tool, ok := s.tools.Lookup(params.Name)
	if !ok {
		return nil, &rpcError{code: JSONRPCInvalidParams, message: "Unknown tool: " + params.Name}
	}

	// Generate request ID for correlation
	requestID := uuid.New().String()
	s.logger.Debug("tools/call",
		"tool_name", params.Name,
		"request_id", requestID,
		"user_id", principal.ID,
	)

	text, err := tool.Handler(ctx, params.Arguments, principal)
	if err != nil {
		s.logger.Warn("tool execution failed",
			"tool_name", params.Name,
			"request_id", requestID,
			"error", err,
		)
		if errors.Is(err, ErrInvalidArgument) {
			return nil, &rpcError{code: JSONRPCInvalidParams, message: err.Error()}
		}
		return nil, err
	}

	s.logger.Debug("tools/call complete", "tool_name", params.Name, "request_id", requestID)
	return MCPCallToolResult{Content: []MCPContent{{Type: "text", Text: text}}}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/mcp", s)
	mux.Handle("/api/mcp", s)
}

// ServeHTTP implements the single-route transport: POST carries JSON-RPC, GET
// serves OAuth discovery, OPTIONS answers CORS preflight.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.discovery, s.logger)
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error":             "method_not_allowed",
			"error_description": r.Method + " method not supported",
		}, s.logger)
	}
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, JSONRPCParseError, "Parse error", "failed to read request body"), s.logger)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		writeJSON(w, http.StatusOK, errorResponse(nil, JSONRPCInvalidRequest, "Request body too large", nil), s.logger)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, JSONRPCParseError, "Parse error", err.Error()), s.logger)
		return
	}

	resp, err := s.Handle(r.Context(), &req, r.Header.Get("Authorization"))

	status := http.StatusOK
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		auth.SetChallenge(w)
		status = http.StatusUnauthorized
	case errors.Is(err, ErrInternal):
		status = http.StatusInternalServerError
	}

	if resp == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, resp, s.logger)
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode JSON response", "error", err)
	}
}

// oauthMetadata is the static authorization server document served on GET.
type oauthMetadata struct {
	Issuer                                   string   `json:"issuer"`
	AuthorizationEndpoint                    string   `json:"authorization_endpoint"`
	TokenEndpoint                            string   `json:"token_endpoint"`
	RegistrationEndpoint                     string   `json:"registration_endpoint"`
	JWKSURI                                  string   `json:"jwks_uri"`
	ResponseTypesSupported                   []string `json:"response_types_supported"`
	GrantTypesSupported                      []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported        []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                          []string `json:"scopes_supported"`
	CodeChallengeMethodsSupported            []string `json:"code_challenge_methods_supported"`
	RegistrationEndpointAuthMethodsSupported []string `json:"registration_endpoint_auth_methods_supported"`
	ClientRegistrationTypesSupported         []string `json:"client_registration_types_supported"`
}

func newOAuthMetadata(issuer string) oauthMetadata {
	return oauthMetadata{
		Issuer:                                   issuer,
		AuthorizationEndpoint:                    issuer + "/api/mcp/authorize",
		TokenEndpoint:                            issuer + "/api/mcp/auth",
		RegistrationEndpoint:                     issuer + "/api/mcp/register",
		JWKSURI:                                  issuer + "/api/mcp/jwks",
		ResponseTypesSupported:                   []string{"code"},
		GrantTypesSupported:                      []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported:        []string{"none"},
		ScopesSupported:                          []string{"mcp"},
		CodeChallengeMethodsSupported:            []string{"S256", "plain"},
		RegistrationEndpointAuthMethodsSupported: []string{"none"},
		ClientRegistrationTypesSupported:         []string{"dynamic"},
	}
}

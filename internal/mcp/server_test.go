// ABOUTME: Tests for MCP dispatch, authentication gating, and the HTTP transport.
// ABOUTME: Uses the real Authenticator over MockStore and fake tool handlers.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
	"github.com/polydev-ai/polydev-mcp/internal/store"
)

type testEnv struct {
	server  *Server
	mux     *http.ServeMux
	store   *store.MockStore
	token   string
	invoked *atomic.Int32
}

func setupTestServer(t *testing.T, handler ToolHandler) *testEnv {
	t.Helper()

	s := store.NewMockStore()
	authn, err := auth.NewAuthenticator(auth.Config{Tokens: s})
	require.NoError(t, err)

	minted, err := auth.NewHashedToken()
	require.NoError(t, err)
	require.NoError(t, s.CreateHashedToken(context.Background(), &store.HashedToken{
		UserID:    "user-1",
		Name:      "test",
		TokenHash: minted.Hash,
		Preview:   minted.Preview,
		Active:    true,
	}))

	invoked := &atomic.Int32{}
	wrapped := func(ctx context.Context, args json.RawMessage, p *auth.Principal) (string, error) {
		invoked.Add(1)
		return handler(ctx, args, p)
	}

	tools, err := DefaultTools(wrapped)
	require.NoError(t, err)

	server, err := NewServer(Config{Authenticator: authn, Tools: tools})
	require.NoError(t, err)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	return &testEnv{server: server, mux: mux, store: s, token: minted.Token, invoked: invoked}
}

func echoHandler(_ context.Context, args json.RawMessage, p *auth.Principal) (string, error) {
	return "hello " + p.ID, nil
}

// post sends a JSON-RPC body and returns the recorder.
func (e *testEnv) post(t *testing.T, body string, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) JSONRPCError {
	t.Helper()
	resp := decodeResponse(t, rr)
	require.Contains(t, resp, "error")
	var rpcErr JSONRPCError
	require.NoError(t, json.Unmarshal(resp["error"], &rpcErr))
	return rpcErr
}

func TestNewServer_Validation(t *testing.T) {
	tools, err := DefaultTools(echoHandler)
	require.NoError(t, err)

	_, err = NewServer(Config{Tools: tools})
	assert.Error(t, err)

	authn, err := auth.NewAuthenticator(auth.Config{Tokens: store.NewMockStore()})
	require.NoError(t, err)
	_, err = NewServer(Config{Authenticator: authn})
	assert.Error(t, err)
}

func TestHandle_UnknownMethodEchoesID(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{"jsonrpc":"2.0","method":"unknown_method","id":"42"}`, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	resp := decodeResponse(t, rr)
	assert.JSONEq(t, `"42"`, string(resp["id"]))
	rpcErr := decodeError(t, rr)
	assert.Equal(t, JSONRPCMethodNotFound, rpcErr.Code)
	assert.Equal(t, "Method not found: unknown_method", rpcErr.Message)
}

func TestHandle_IDEchoAcrossOutcomes(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	bodies := []struct {
		body string
		auth string
	}{
		{`{"method":"initialize","id":7}`, ""},
		{`{"method":"tools/list","id":"abc"}`, ""},
		{`{"method":"tools/call","id":99,"params":{"name":"get_perspectives"}}`, ""},
		{`{"method":"tools/call","id":"x-1","params":{"name":"nope"}}`, "Bearer " + env.token},
		{`{"method":"resources/list","id":1.5}`, ""},
	}
	for _, b := range bodies {
		var req map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(b.body), &req))

		resp := decodeResponse(t, env.post(t, b.body, b.auth))
		assert.JSONEq(t, string(req["id"]), string(resp["id"]), b.body)
	}
}

func TestHandle_NotificationsAreSilent(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":3}}`,
	} {
		rr := env.post(t, body, "")
		assert.Equal(t, http.StatusOK, rr.Code, body)
		assert.Empty(t, rr.Body.String(), body)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestHandle_InitializeEchoesProtocolVersion(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	for _, version := range []string{"2024-11-05", "2025-06-18", "1999-01-01"} {
		rr := env.post(t, `{"method":"initialize","id":1,"params":{"protocolVersion":"`+version+`"}}`, "")
		var resp struct {
			Result InitializeResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, version, resp.Result.ProtocolVersion)
		assert.Equal(t, ServerName, resp.Result.ServerInfo.Name)
	}

	rr := env.post(t, `{"method":"initialize","id":1}`, "")
	assert.Contains(t, rr.Body.String(), `"protocolVersion":"2024-11-05"`)
	assert.Contains(t, rr.Body.String(), `"capabilities":{"tools":{}}`)
}

func TestHandle_ToolsListNeedsNoAuth(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{"method":"tools/list","id":1}`, "")
	var resp struct {
		Result MCPListToolsResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Tools, 2)
	assert.Equal(t, ToolGetPerspectives, resp.Result.Tools[0].Name)
	assert.Equal(t, ToolSearchDocumentation, resp.Result.Tools[1].Name)
	assert.Contains(t, string(resp.Result.Tools[0].InputSchema), `"required":["prompt"]`)
	assert.Contains(t, string(resp.Result.Tools[0].InputSchema), `"provider_settings":{"type":"object"`)
}

func TestHandle_EmptyCollections(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{"method":"resources/list","id":1}`, "")
	assert.Contains(t, rr.Body.String(), `"result":{"resources":[]}`)

	rr = env.post(t, `{"method":"prompts/list","id":2}`, "")
	assert.Contains(t, rr.Body.String(), `"result":{"prompts":[]}`)
}

func TestHandle_ToolsCallRequiresAuth(t *testing.T) {
	env := setupTestServer(t, func(context.Context, json.RawMessage, *auth.Principal) (string, error) {
		panic("handler must not run without auth")
	})

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"no header", "", "Missing or invalid Authorization header. Use Bearer token."},
		{"wrong scheme", "Token abc", "Missing or invalid Authorization header. Use Bearer token."},
		{"bearer without token", "Bearer ", "Unsupported token format. Use OAuth tokens (polydev_) or MCP tokens (pd_)"},
		{"unsupported prefix", "Bearer sk-123", "Unsupported token format. Use OAuth tokens (polydev_) or MCP tokens (pd_)"},
		{"unknown pd token", "Bearer pd_nope", "Invalid or expired MCP token"},
		{"unknown oauth token", "Bearer polydev_nope", "Invalid or expired OAuth token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.post(t, `{"method":"tools/call","id":5,"params":{"name":"get_perspectives","arguments":{"prompt":"x"}}}`, tt.header)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, `Bearer realm="mcp", error="invalid_token"`, rr.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
			rpcErr := decodeError(t, rr)
			assert.Equal(t, JSONRPCInvalidParams, rpcErr.Code)
			assert.Equal(t, tt.message, rpcErr.Message)
		})
	}
	assert.Equal(t, int32(0), env.invoked.Load())
}

func TestHandle_ExpiredOAuthToken(t *testing.T) {
	env := setupTestServer(t, echoHandler)
	require.NoError(t, env.store.CreateAccessToken(context.Background(), &store.AccessToken{
		Token:     "polydev_expired",
		ClientID:  "c",
		UserID:    "user-2",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	rr := env.post(t, `{"method":"tools/call","id":1,"params":{"name":"get_perspectives"}}`, "Bearer polydev_expired")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "OAuth token has expired", decodeError(t, rr).Message)
}

func TestHandle_ToolsCallSuccess(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{"method":"tools/call","id":3,"params":{"name":"get_perspectives","arguments":{"prompt":"hi"}}}`, "Bearer "+env.token)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Result MCPCallToolResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Content, 1)
	assert.Equal(t, "text", resp.Result.Content[0].Type)
	assert.Equal(t, "hello user-1", resp.Result.Content[0].Text)
}

func TestHandle_ToolsCallUnknownTool(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{"method":"tools/call","id":3,"params":{"name":"delete_everything"}}`, "Bearer "+env.token)
	assert.Equal(t, http.StatusOK, rr.Code)
	rpcErr := decodeError(t, rr)
	assert.Equal(t, JSONRPCInvalidParams, rpcErr.Code)
	assert.Equal(t, "Unknown tool: delete_everything", rpcErr.Message)
}

func TestHandle_ToolErrors(t *testing.T) {
	var mu sync.Mutex
	var next error
	env := setupTestServer(t, func(context.Context, json.RawMessage, *auth.Principal) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return "", next
	})
	call := `{"method":"tools/call","id":3,"params":{"name":"get_perspectives","arguments":{}}}`

	mu.Lock()
	next = InvalidArgument("prompt is required and must be a string")
	mu.Unlock()
	rpcErr := decodeError(t, env.post(t, call, "Bearer "+env.token))
	assert.Equal(t, JSONRPCInvalidParams, rpcErr.Code)
	assert.Equal(t, "prompt is required and must be a string", rpcErr.Message)

	mu.Lock()
	next = errors.New("provider registry unavailable")
	mu.Unlock()
	rr := env.post(t, call, "Bearer "+env.token)
	assert.Equal(t, http.StatusOK, rr.Code)
	rpcErr = decodeError(t, rr)
	assert.Equal(t, JSONRPCInternalError, rpcErr.Code)
	assert.Equal(t, "provider registry unavailable", rpcErr.Message)
}

func TestHandle_PanicBecomesInternalError(t *testing.T) {
	env := setupTestServer(t, func(context.Context, json.RawMessage, *auth.Principal) (string, error) {
		panic("kaboom")
	})

	rr := env.post(t, `{"method":"tools/call","id":"p1","params":{"name":"get_perspectives"}}`, "Bearer "+env.token)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	resp := decodeResponse(t, rr)
	assert.JSONEq(t, `"p1"`, string(resp["id"]))
	rpcErr := decodeError(t, rr)
	assert.Equal(t, JSONRPCInternalError, rpcErr.Code)
	assert.Equal(t, "Internal error", rpcErr.Message)
	assert.Equal(t, "kaboom", rpcErr.Data)
}

func TestHandle_SearchDocumentation(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{"method":"tools/call","id":1,"params":{"name":"search_documentation","arguments":{"query":"MCP"}}}`, "Bearer "+env.token)
	var resp struct {
		Result MCPCallToolResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Content, 1)
	assert.Contains(t, resp.Result.Content[0].Text, "## MCP Integration")
	assert.Contains(t, resp.Result.Content[0].Text, "https://polydev.ai/docs/mcp-integration")
	assert.Equal(t, int32(0), env.invoked.Load(), "search must not call the perspectives handler")
}

func TestServeHTTP_ParseError(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	rr := env.post(t, `{not json`, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeResponse(t, rr)
	assert.Equal(t, "null", string(resp["id"]))
	assert.Equal(t, JSONRPCParseError, decodeError(t, rr).Code)
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	big := `{"method":"initialize","id":1,"params":{"pad":"` + strings.Repeat("a", MaxRequestBodySize) + `"}}`
	rr := env.post(t, big, "")
	assert.Equal(t, JSONRPCInvalidRequest, decodeError(t, rr).Code)
}

func TestServeHTTP_Options(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", rr.Header().Get("Access-Control-Allow-Headers"))
}

func TestServeHTTP_Discovery(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/mcp", nil)
	rr := httptest.NewRecorder()
	env.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, DefaultPublicURL, doc["issuer"])
	assert.Equal(t, DefaultPublicURL+"/api/mcp/auth", doc["token_endpoint"])
	assert.Equal(t, []any{"S256", "plain"}, doc["code_challenge_methods_supported"])
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeHTTP_UnsupportedVerbs(t *testing.T) {
	env := setupTestServer(t, echoHandler)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/mcp", bytes.NewReader(nil))
		rr := httptest.NewRecorder()
		env.mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "method_not_allowed", body["error"])
		assert.Equal(t, method+" method not supported", body["error_description"])
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

// recordingObserver captures dispatched methods.
type recordingObserver struct {
	mu        sync.Mutex
	requests  []string
	responses []*JSONRPCResponse
}

func (o *recordingObserver) OnRequest(_ context.Context, method string, _ json.RawMessage, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, method)
}

func (o *recordingObserver) OnResponse(_ context.Context, _ string, resp *JSONRPCResponse, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, resp)
}

func TestHandle_ObserverSeesEveryRequest(t *testing.T) {
	obs := &recordingObserver{}
	tools, err := DefaultTools(echoHandler)
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(auth.Config{Tokens: store.NewMockStore()})
	require.NoError(t, err)
	server, err := NewServer(Config{Authenticator: authn, Tools: tools, Observer: Observers(obs, nil)})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = server.Handle(ctx, &JSONRPCRequest{Method: "tools/list", ID: json.RawMessage(`1`)}, "")
	require.NoError(t, err)
	resp, err := server.Handle(ctx, &JSONRPCRequest{Method: "initialized"}, "")
	require.NoError(t, err)
	assert.Nil(t, resp)

	assert.Equal(t, []string{"tools/list", "initialized"}, obs.requests)
	require.Len(t, obs.responses, 2)
	assert.NotNil(t, obs.responses[0])
	assert.Nil(t, obs.responses[1])
}

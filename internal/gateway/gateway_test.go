// ABOUTME: Tests for the Gateway orchestrator wiring and lifecycle
// ABOUTME: Drives the full HTTP stack with an in-memory store and a fake provider invoker

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
	"github.com/polydev-ai/polydev-mcp/internal/config"
	"github.com/polydev-ai/polydev-mcp/internal/providers"
	"github.com/polydev-ai/polydev-mcp/internal/store"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig creates a minimal config for testing.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: ":memory:"},
	}
	cfg.ApplyDefaults()
	return cfg
}

type testGateway struct {
	gw    *Gateway
	store *store.MockStore
	token string
}

func newTestGateway(t *testing.T, cfg *config.Config, invoke providers.FuncInvoker) *testGateway {
	t.Helper()

	s := store.NewMockStore()
	gw, err := newGateway(cfg, testLogger(), deps{store: s, invoker: invoke})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	minted, err := auth.NewHashedToken()
	require.NoError(t, err)
	require.NoError(t, s.CreateHashedToken(context.Background(), &store.HashedToken{
		UserID:    "user-1",
		Name:      "ci",
		TokenHash: minted.Hash,
		Preview:   minted.Preview,
		Active:    true,
	}))

	return &testGateway{gw: gw, store: s, token: minted.Token}
}

func (tg *testGateway) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.1:40000"
	if body != "" {
		req.Header.Set("Authorization", "Bearer "+tg.token)
	}
	rr := httptest.NewRecorder()
	tg.gw.Handler().ServeHTTP(rr, req)
	return rr
}

func echoInvoker(_ context.Context, call providers.Call) (*providers.Result, error) {
	if call.Model == "broken-model" {
		return nil, errors.New("upstream unavailable")
	}
	return &providers.Result{Content: "answer from " + call.Model, TokensUsed: 10, Latency: 5 * time.Millisecond}, nil
}

func TestGatewayNew_SQLite(t *testing.T) {
	cfg := testConfig()

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.aggregator == nil {
		t.Error("aggregator should not be nil")
	}
	if gw.metrics != nil {
		t.Error("metrics should be nil when disabled")
	}
	if gw.limiter != nil {
		t.Error("limiter should be nil when rate limiting is disabled")
	}

	rr := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("/health/ready = %d, want 200", rr.Code)
	}
}

func TestGateway_Health(t *testing.T) {
	tg := newTestGateway(t, testConfig(), echoInvoker)

	rr := tg.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = tg.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready (0 providers)", rr.Body.String())
}

func TestGateway_GetPerspectivesEndToEnd(t *testing.T) {
	tg := newTestGateway(t, testConfig(), echoInvoker)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_perspectives",` +
		`"arguments":{"prompt":"Explain CAP","models":["gpt-4o","broken-model"]}}}`
	rr := tg.do(t, http.MethodPost, "/mcp", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Result.Content, 1)
	text := resp.Result.Content[0].Text
	assert.True(t, strings.HasPrefix(text, "# Multiple AI Perspectives\n\nGot 1/2 perspectives"), text)
	assert.Contains(t, text, "## GPT-4O\nanswer from gpt-4o")
	assert.Contains(t, text, "## BROKEN-MODEL - ERROR\n❌ Failed to get response from broken-model: upstream unavailable")

	usage := tg.store.Usage()
	require.Len(t, usage, 2)
	assert.Equal(t, "user-1", usage[0].UserID)
	assert.Equal(t, usage[0].RequestID, usage[1].RequestID)
}

func TestGateway_APIAliasRoute(t *testing.T) {
	tg := newTestGateway(t, testConfig(), echoInvoker)

	rr := tg.do(t, http.MethodPost, "/api/mcp", `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"get_perspectives"`)
}

func TestGateway_MetricsEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Providers = []config.ProviderConfig{{Name: "openai", DisplayName: "OpenAI"}}
	tg := newTestGateway(t, cfg, echoInvoker)

	tg.do(t, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	rr := tg.do(t, http.MethodPost, "/mcp",
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_perspectives","arguments":{"prompt":"hi","models":["gpt-4o","broken-model"]}}}`)
	assert.Contains(t, rr.Body.String(), `## GPT-4O (OpenAI)\nanswer from gpt-4o`)

	rr = tg.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `polydev_mcp_requests_total{method="tools/list",status="ok"} 1`)
	assert.Contains(t, rr.Body.String(), `polydev_mcp_perspectives_total{outcome="ok",provider="openai"} 1`)
	// broken-model falls back to the OpenAI-compatible provider too.
	assert.Contains(t, rr.Body.String(), `polydev_mcp_perspectives_total{outcome="error",provider="openai"} 1`)
	assert.NotContains(t, rr.Body.String(), `gpt-4o"`)
}

func TestGateway_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1}
	tg := newTestGateway(t, cfg, echoInvoker)

	list := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/mcp", list).Code)
	assert.Equal(t, http.StatusTooManyRequests, tg.do(t, http.MethodPost, "/mcp", list).Code)

	// Health and metrics are outside the limiter.
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodGet, "/health", "").Code)
	rr := tg.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, rr.Body.String(), "polydev_mcp_rate_limited_total 1")
}

func TestGateway_ServeAndShutdown(t *testing.T) {
	s := store.NewMockStore()
	gw, err := newGateway(testConfig(), testLogger(), deps{store: s, invoker: providers.FuncInvoker(echoInvoker)})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewGateway_RequiresStore(t *testing.T) {
	_, err := newGateway(testConfig(), testLogger(), deps{})
	assert.Error(t, err)
}

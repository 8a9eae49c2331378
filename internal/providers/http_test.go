// ABOUTME: Tests for HTTPInvoker request shapes, response parsing, and retry policy
// ABOUTME: Uses httptest servers standing in for vendor APIs

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoker(t *testing.T, providers ...Provider) *HTTPInvoker {
	t.Helper()
	inv, err := NewHTTPInvoker(HTTPConfig{
		Providers:      providers,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return inv
}

func TestHTTPInvoker_OpenAICompatible(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: OpenAI, BaseURL: srv.URL, APIKey: "sk-test"})
	res, err := inv.Invoke(context.Background(), Call{Model: "gpt-4o", Prompt: "hi", Temperature: 0.5, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, OpenAI, res.Provider)
	assert.Equal(t, 42, res.TokensUsed)
	assert.Greater(t, res.Latency, time.Duration(0))
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.InDelta(t, 0.5, gotBody["temperature"], 1e-9)
	assert.InDelta(t, 100, gotBody["max_tokens"], 1e-9)
}

func TestHTTPInvoker_Anthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"bonjour"}],"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: Anthropic, DisplayName: "Anthropic", BaseURL: srv.URL, APIKey: "ak"})
	res, err := inv.Invoke(context.Background(), Call{Model: "claude-3-5-sonnet-20241022", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", res.Content)
	assert.Equal(t, "Anthropic", res.Provider)
	assert.Equal(t, 15, res.TokensUsed)
}

func TestHTTPInvoker_Gemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash-exp:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hola"}]}}],"usageMetadata":{"totalTokenCount":7}}`))
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: Gemini, BaseURL: srv.URL, APIKey: "gk"})
	res, err := inv.Invoke(context.Background(), Call{Model: "gemini-2.0-flash-exp", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hola", res.Content)
	assert.Equal(t, 7, res.TokensUsed)
}

func TestHTTPInvoker_MissingContentIsNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: OpenAI, BaseURL: srv.URL, APIKey: "k"})
	res, err := inv.Invoke(context.Background(), Call{Model: "gpt-4o", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "No response", res.Content)
	assert.Zero(t, res.TokensUsed)
}

func TestHTTPInvoker_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"finally"}}]}`))
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: OpenAI, BaseURL: srv.URL, APIKey: "k"})
	res, err := inv.Invoke(context.Background(), Call{Model: "gpt-4o", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "finally", res.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPInvoker_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: OpenAI, DisplayName: "OpenAI", BaseURL: srv.URL, APIKey: "k"})
	_, err := inv.Invoke(context.Background(), Call{Model: "gpt-4o", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, "OpenAI API error: 401 Unauthorized", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPInvoker_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: OpenAI, BaseURL: srv.URL, APIKey: "k"})
	_, err := inv.Invoke(context.Background(), Call{Model: "gpt-4o", Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPInvoker_NoProviderOrKey(t *testing.T) {
	inv := newTestInvoker(t, Provider{Name: Anthropic, BaseURL: "http://unused"})

	_, err := inv.Invoke(context.Background(), Call{Model: "claude-3-haiku"})
	assert.True(t, errors.Is(err, ErrNoAPIKey))

	_, err = inv.Invoke(context.Background(), Call{Model: "deepseek-chat"})
	assert.True(t, errors.Is(err, ErrNoProvider))
}

func TestHTTPInvoker_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	inv := newTestInvoker(t, Provider{Name: OpenAI, BaseURL: srv.URL, APIKey: "k"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, Call{Model: "gpt-4o", Prompt: "hi"})
	require.Error(t, err)
}

func TestHTTPInvoker_SharedRouter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"routed"}}]}`))
	}))
	defer srv.Close()

	router, err := NewRouter([]Provider{{Name: "local", DisplayName: "Local LLM", BaseURL: srv.URL, APIKey: "k", Models: []string{"my-model"}}})
	require.NoError(t, err)

	// Providers is ignored when a router is supplied.
	inv, err := NewHTTPInvoker(HTTPConfig{Router: router, Providers: []Provider{{Name: ""}}})
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), Call{Model: "my-model", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "routed", res.Content)
	assert.Equal(t, "Local LLM", res.Provider)
}

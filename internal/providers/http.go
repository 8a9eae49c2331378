// ABOUTME: HTTPInvoker calls vendor chat APIs in OpenAI, Anthropic, and Gemini formats
// ABOUTME: Retries transient failures with exponential backoff and parses replies with gjson

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
)

const (
	anthropicVersion      = "2023-06-01"
	noResponse            = "No response"
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	maxResponseBytes      = 4 << 20
)

// HTTPConfig holds configuration for the HTTPInvoker.
type HTTPConfig struct {
	Providers []Provider
	// Router, when set, is used instead of building one from Providers.
	Router    *Router
	Client    *http.Client
	Logger    *slog.Logger
	// MaxAttempts includes the first try. Zero means 3.
	MaxAttempts uint
	// InitialBackoff is the first retry delay. Zero means 500ms.
	InitialBackoff time.Duration
}

// HTTPInvoker implements Invoker against real vendor endpoints.
type HTTPInvoker struct {
	router         *Router
	client         *http.Client
	logger         *slog.Logger
	maxAttempts    uint
	initialBackoff time.Duration
}

// NewHTTPInvoker creates an HTTPInvoker for the configured providers.
func NewHTTPInvoker(cfg HTTPConfig) (*HTTPInvoker, error) {
	router := cfg.Router
	if router == nil {
		var err error
		router, err = NewRouter(cfg.Providers)
		if err != nil {
			return nil, fmt.Errorf("building provider router: %w", err)
		}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = defaultMaxAttempts
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}

	return &HTTPInvoker{
		router:         router,
		client:         client,
		logger:         logger.With("component", "providers"),
		maxAttempts:    attempts,
		initialBackoff: initial,
	}, nil
}

// statusError is a non-2xx vendor response.
type statusError struct {
	provider string
	code     int
	status   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.provider, e.status)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Invoke resolves the model's provider and performs the request.
func (h *HTTPInvoker) Invoke(ctx context.Context, call Call) (*Result, error) {
	provider, err := h.router.Resolve(call.Model)
	if err != nil {
		return nil, err
	}
	if provider.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, provider.Label())
	}

	start := time.Now()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = h.initialBackoff
	expBackoff.MaxInterval = 20 * h.initialBackoff
	expBackoff.Reset()

	attempt := 0
	operation := func() (*Result, error) {
		attempt++
		result, err := h.do(ctx, provider, call)
		if err == nil {
			return result, nil
		}

		var se *statusError
		switch {
		case ctx.Err() != nil:
			return nil, backoff.Permanent(err)
		case errors.As(err, &se) && !se.retryable():
			return nil, backoff.Permanent(err)
		case errors.As(err, &se), isTransport(err):
			h.logger.Warn("provider call failed",
				"provider", provider.Name,
				"model", call.Model,
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(h.maxAttempts),
		backoff.WithNotify(func(_ error, d time.Duration) {
			h.logger.Debug("retrying provider call", "provider", provider.Name, "model", call.Model, "after", d)
		}),
	)
	if err != nil {
		return nil, err
	}

	result.Latency = time.Since(start)
	result.Provider = provider.Label()
	return result, nil
}

// transportError marks failures below HTTP (dial, TLS, reset).
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

func (h *HTTPInvoker) do(ctx context.Context, provider *Provider, call Call) (*Result, error) {
	endpoint, headers, body, err := buildRequest(provider, call)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("%s request failed: %w", provider.Label(), err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("reading %s response: %w", provider.Label(), err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{provider: provider.Label(), code: resp.StatusCode, status: resp.Status}
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s returned invalid JSON", provider.Label())
	}

	content, tokens := parseResponse(provider.Name, data)
	return &Result{Content: content, TokensUsed: tokens}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

func buildRequest(p *Provider, call Call) (string, map[string]string, []byte, error) {
	var (
		endpoint string
		headers  = map[string]string{"Content-Type": "application/json"}
		payload  any
	)

	switch p.Name {
	case Anthropic:
		endpoint = p.BaseURL + "/v1/messages"
		headers["x-api-key"] = p.APIKey
		headers["anthropic-version"] = anthropicVersion
		payload = chatRequest{
			Model:       call.Model,
			Messages:    []chatMessage{{Role: "user", Content: call.Prompt}},
			Temperature: call.Temperature,
			MaxTokens:   call.MaxTokens,
		}
	case Gemini, Google:
		endpoint = p.BaseURL + "/models/" + url.PathEscape(call.Model) + ":generateContent?key=" + url.QueryEscape(p.APIKey)
		payload = geminiRequest{
			Contents: []geminiContent{{Parts: []geminiPart{{Text: call.Prompt}}}},
			GenerationConfig: geminiGenerationConfig{
				Temperature:     call.Temperature,
				MaxOutputTokens: call.MaxTokens,
			},
		}
	default:
		// OpenAI-compatible chat completions.
		endpoint = p.BaseURL + "/chat/completions"
		headers["Authorization"] = "Bearer " + p.APIKey
		payload = chatRequest{
			Model:       call.Model,
			Messages:    []chatMessage{{Role: "user", Content: call.Prompt}},
			Temperature: call.Temperature,
			MaxTokens:   call.MaxTokens,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, nil, fmt.Errorf("encoding request: %w", err)
	}
	return endpoint, headers, body, nil
}

func parseResponse(provider string, data []byte) (string, int) {
	var content string
	var tokens int

	switch provider {
	case Anthropic:
		content = gjson.GetBytes(data, "content.0.text").String()
		tokens = int(gjson.GetBytes(data, "usage.input_tokens").Int() + gjson.GetBytes(data, "usage.output_tokens").Int())
	case Gemini, Google:
		content = gjson.GetBytes(data, "candidates.0.content.parts.0.text").String()
		tokens = int(gjson.GetBytes(data, "usageMetadata.totalTokenCount").Int())
	default:
		content = gjson.GetBytes(data, "choices.0.message.content").String()
		tokens = int(gjson.GetBytes(data, "usage.total_tokens").Int())
	}

	if content == "" {
		content = noResponse
	}
	return content, tokens
}

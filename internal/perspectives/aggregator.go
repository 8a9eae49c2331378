// ABOUTME: Fans one prompt out to several models concurrently and settles every outcome
// ABOUTME: A failing or slow provider becomes an error section, never a failed request

package perspectives

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
	"github.com/polydev-ai/polydev-mcp/internal/cache"
	"github.com/polydev-ai/polydev-mcp/internal/providers"
	"github.com/polydev-ai/polydev-mcp/internal/store"
)

// Defaults applied when neither the call nor the caller's preferences decide.
const (
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 1000
	DefaultProviderTimeout    = 30 * time.Second
	DefaultPreferenceCacheTTL = time.Minute
	preferenceCacheSize       = 10000
)

// DefaultModels is the baseline model list for callers without preferences.
var DefaultModels = []string{"gpt-5-2025-08-07"}

// Recorder observes each settled outcome. Implemented by the metrics package.
// provider is the configured provider name, or "" when the model routed nowhere.
type Recorder interface {
	ObservePerspective(provider string, ok bool, latency time.Duration, tokens int)
}

// Config holds configuration for the Aggregator.
type Config struct {
	Invoker     providers.Invoker
	Preferences store.PreferenceStore
	// Router is optional. When set, each model is resolved to its provider
	// for provider_settings, section headers, and metrics.
	Router *providers.Router
	// Usage is optional; when set every outcome is appended to the usage ledger.
	Usage    store.UsageStore
	Recorder Recorder
	Logger   *slog.Logger

	ProviderTimeout    time.Duration
	MaxConcurrency     int // 0 means one goroutine per model
	PreferenceCacheTTL time.Duration
	DefaultModels      []string
}

// Aggregator implements the get_perspectives fan-out.
type Aggregator struct {
	invoker        providers.Invoker
	router         *providers.Router
	preferences    store.PreferenceStore
	usage          store.UsageStore
	recorder       Recorder
	logger         *slog.Logger
	timeout        time.Duration
	maxConcurrency int
	defaultModels  []string
	prefCache      *cache.Cache[*store.Preferences]
}

// New creates an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if cfg.Preferences == nil {
		return nil, errors.New("preference store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	ttl := cfg.PreferenceCacheTTL
	if ttl <= 0 {
		ttl = DefaultPreferenceCacheTTL
	}
	models := cfg.DefaultModels
	if len(models) == 0 {
		models = DefaultModels
	}

	return &Aggregator{
		invoker:        cfg.Invoker,
		router:         cfg.Router,
		preferences:    cfg.Preferences,
		usage:          cfg.Usage,
		recorder:       cfg.Recorder,
		logger:         logger.With("component", "perspectives"),
		timeout:        timeout,
		maxConcurrency: cfg.MaxConcurrency,
		defaultModels:  append([]string(nil), models...),
		prefCache:      cache.New[*store.Preferences](ttl, preferenceCacheSize),
	}, nil
}

// Close releases the preference cache.
func (a *Aggregator) Close() {
	a.prefCache.Close()
}

// InvalidatePreferences drops the cached preferences for a user.
func (a *Aggregator) InvalidatePreferences(userID string) {
	a.prefCache.Delete(userID)
}

// Handle parses raw tool arguments and runs the fan-out.
func (a *Aggregator) Handle(ctx context.Context, args json.RawMessage, principal *auth.Principal) (string, error) {
	req, err := ParseRequest(args)
	if err != nil {
		return "", err
	}
	return a.Run(ctx, req, principal)
}

// Run fans req out to every resolved model and renders the composite report.
// Provider failures are folded into the report; Run itself only fails on
// invalid input.
func (a *Aggregator) Run(ctx context.Context, req *Request, principal *auth.Principal) (string, error) {
	if req == nil || req.Prompt == "" {
		return "", InvalidArgument("prompt is required and must be a string")
	}
	userID := ""
	if principal != nil {
		userID = principal.ID
	}

	var prefs *store.Preferences
	if len(req.Models) == 0 || req.Temperature == nil || req.MaxTokens == nil {
		prefs = a.loadPreferences(ctx, userID)
	}

	models := a.resolveModels(req, prefs)
	temperature, maxTokens := resolveSampling(req, prefs)

	requestID := uuid.New().String()
	a.logger.Info("fanning out perspectives",
		"request_id", requestID,
		"user_id", userID,
		"models", models,
		"temperature", temperature,
		"max_tokens", maxTokens,
	)

	outcomes := a.fanOut(ctx, a.plan(req, models, temperature, maxTokens))
	report := Summarize(outcomes)

	a.logger.Info("perspectives settled",
		"request_id", requestID,
		"succeeded", report.Succeeded,
		"total", len(outcomes),
		"latency_ms", report.TotalLatency.Milliseconds(),
		"tokens", report.TotalTokens,
	)

	a.recordUsage(ctx, requestID, userID, outcomes)
	return report.Render(), nil
}

// plannedCall is one model invocation with its routing already decided.
type plannedCall struct {
	call     providers.Call
	provider string
	label    string
}

// plan resolves each model's provider and applies that provider's settings
// over the call-wide sampling values.
func (a *Aggregator) plan(req *Request, models []string, temperature float64, maxTokens int) []plannedCall {
	calls := make([]plannedCall, len(models))
	for i, model := range models {
		pc := plannedCall{call: providers.Call{
			Model:       model,
			Prompt:      req.Prompt,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		}}
		if a.router != nil {
			if p, err := a.router.Resolve(model); err == nil {
				pc.provider = p.Name
				pc.label = p.Label()
			}
		}
		if ps, ok := req.ProviderSettings[pc.provider]; ok && pc.provider != "" {
			if ps.Temperature != nil {
				pc.call.Temperature = *ps.Temperature
			}
			if ps.MaxTokens != nil {
				pc.call.MaxTokens = *ps.MaxTokens
			}
		}
		calls[i] = pc
	}
	return calls
}

// fanOut invokes every model concurrently. Every goroutine returns nil so no
// sibling is cancelled; outcomes are indexed by request position.
func (a *Aggregator) fanOut(ctx context.Context, calls []plannedCall) []Outcome {
	outcomes := make([]Outcome, len(calls))

	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}

	for i, pc := range calls {
		g.Go(func() error {
			outcomes[i] = a.invoke(ctx, pc)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

type invokeResult struct {
	res *providers.Result
	err error
}

// invoke runs one provider call under the per-provider timeout. The call runs
// on its own goroutine so an invoker that ignores ctx cannot hold the fan-out
// past the deadline; a result arriving after it is dropped.
func (a *Aggregator) invoke(ctx context.Context, pc plannedCall) Outcome {
	out := Outcome{Model: pc.call.Model, Provider: pc.provider, ProviderLabel: pc.label}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("provider invocation panicked", "model", pc.call.Model, "panic", r)
				done <- invokeResult{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		res, err := a.invoker.Invoke(callCtx, pc.call)
		done <- invokeResult{res: res, err: err}
	}()

	var r invokeResult
	select {
	case r = <-done:
	case <-callCtx.Done():
		r.err = callCtx.Err()
	}

	switch {
	case r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		out.Err = fmt.Errorf("timed out after %s", a.timeout)
	case r.err != nil:
		out.Err = r.err
	case r.res == nil:
		out.Err = errors.New("provider returned no result")
	default:
		out.Content = r.res.Content
		out.TokensUsed = r.res.TokensUsed
		out.Latency = r.res.Latency
		if out.Latency <= 0 {
			out.Latency = time.Since(start)
		}
		if r.res.Provider != "" {
			out.ProviderLabel = r.res.Provider
		}
	}

	if out.Err != nil {
		a.logger.Warn("provider call failed", "model", out.Model, "provider", out.Provider, "error", out.Err)
	}
	if a.recorder != nil {
		a.recorder.ObservePerspective(out.Provider, out.OK(), out.Latency, out.TokensUsed)
	}
	return out
}

// loadPreferences returns the user's preferences or nil. Lookup failures
// degrade to defaults and are not cached.
func (a *Aggregator) loadPreferences(ctx context.Context, userID string) *store.Preferences {
	if userID == "" {
		return nil
	}
	if prefs, ok := a.prefCache.Get(userID); ok {
		return prefs
	}

	prefs, err := a.preferences.GetPreferences(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.prefCache.Set(userID, nil)
		return nil
	case err != nil:
		a.logger.Warn("failed to load preferences, using defaults", "user_id", userID, "error", err)
		return nil
	}

	a.prefCache.Set(userID, prefs)
	return prefs
}

func (a *Aggregator) resolveModels(req *Request, prefs *store.Preferences) []string {
	if len(req.Models) > 0 {
		return req.Models
	}
	if prefs != nil && len(prefs.PreferredProviders) > 0 {
		models := make([]string, 0, len(prefs.PreferredProviders))
		for _, provider := range prefs.PreferredProviders {
			if m := prefs.ModelPreferences[provider]; m != "" {
				models = append(models, m)
			} else {
				models = append(models, providers.DefaultModel(provider))
			}
		}
		return models
	}
	if prefs != nil && prefs.DefaultModel != "" {
		return []string{prefs.DefaultModel}
	}
	return append([]string(nil), a.defaultModels...)
}

func resolveSampling(req *Request, prefs *store.Preferences) (float64, int) {
	temperature := DefaultTemperature
	switch {
	case req.Temperature != nil:
		temperature = *req.Temperature
	case prefs != nil && prefs.DefaultTemperature != nil:
		temperature = *prefs.DefaultTemperature
	}

	maxTokens := DefaultMaxTokens
	switch {
	case req.MaxTokens != nil:
		maxTokens = *req.MaxTokens
	case prefs != nil && prefs.DefaultMaxTokens != nil:
		maxTokens = *prefs.DefaultMaxTokens
	}
	return temperature, maxTokens
}

// recordUsage appends one ledger row per outcome. Failures are logged only.
func (a *Aggregator) recordUsage(ctx context.Context, requestID, userID string, outcomes []Outcome) {
	if a.usage == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, o := range outcomes {
		err := a.usage.SaveUsage(ctx, &store.PerspectiveUsage{
			RequestID:  requestID,
			UserID:     userID,
			Model:      o.Model,
			TokensUsed: o.TokensUsed,
			LatencyMs:  o.Latency.Milliseconds(),
			Succeeded:  o.OK(),
		})
		if err != nil {
			a.logger.Warn("failed to record usage", "request_id", requestID, "model", o.Model, "error", err)
		}
	}
}

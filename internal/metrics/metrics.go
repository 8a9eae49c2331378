// ABOUTME: Prometheus collectors for MCP dispatch, provider fan-out, and rate limiting
// ABOUTME: Implements mcp.Observer and perspectives.Recorder and serves the scrape endpoint

// Package metrics exposes the server's Prometheus collectors on a private registry.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polydev-ai/polydev-mcp/internal/mcp"
	"github.com/polydev-ai/polydev-mcp/internal/perspectives"
)

const namespace = "polydev_mcp"

// knownMethods bounds the method label; anything else is reported as "other".
var knownMethods = map[string]bool{
	"initialize":     true,
	"initialized":    true,
	"tools/list":     true,
	"tools/call":     true,
	"resources/list": true,
	"prompts/list":   true,
}

// otherLabel stands in for any method or provider outside the known set.
const otherLabel = "other"

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry
	// providers bounds the provider label to configured provider names.
	providers map[string]bool

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	perspectives       *prometheus.CounterVec
	perspectiveLatency *prometheus.HistogramVec
	perspectiveTokens  *prometheus.CounterVec

	rateLimited prometheus.Counter
}

var (
	_ mcp.Observer          = (*Metrics)(nil)
	_ perspectives.Recorder = (*Metrics)(nil)
)

// New registers all collectors. includeRuntime adds the Go and process
// collectors. providers lists the configured provider names; perspective
// observations for any other name are labelled "other".
func New(includeRuntime bool, providers ...string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and status (ok, notification, or error code).",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC dispatch latency.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "JSON-RPC requests currently being dispatched.",
		}),
		perspectives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perspectives_total",
			Help:      "Provider invocations made by get_perspectives.",
		}, []string{"provider", "outcome"}),
		perspectiveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "perspective_latency_seconds",
			Help:      "Latency of successful provider invocations.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		perspectiveTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perspective_tokens_total",
			Help:      "Tokens reported by successful provider invocations.",
		}, []string{"provider"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
	}

	m.providers = make(map[string]bool, len(providers))
	for _, name := range providers {
		m.providers[name] = true
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.inFlight,
		m.perspectives,
		m.perspectiveLatency,
		m.perspectiveTokens,
		m.rateLimited,
	)
	if includeRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// OnRequest counts a request as in flight.
func (m *Metrics) OnRequest(context.Context, string, json.RawMessage, bool) {
	m.inFlight.Inc()
}

// OnResponse counts the finished request by method and status and records
// its dispatch latency.
func (m *Metrics) OnResponse(_ context.Context, method string, resp *mcp.JSONRPCResponse, elapsed time.Duration) {
	m.inFlight.Dec()

	label := methodLabel(method)
	status := "ok"
	switch {
	case resp == nil:
		status = "notification"
	case resp.Error != nil:
		status = strconv.Itoa(resp.Error.Code)
	}
	m.requests.WithLabelValues(label, status).Inc()
	m.requestDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ObservePerspective records one settled provider invocation. Latency and
// tokens are recorded for successes only.
func (m *Metrics) ObservePerspective(provider string, ok bool, latency time.Duration, tokens int) {
	label := m.providerLabel(provider)
	if !ok {
		m.perspectives.WithLabelValues(label, "error").Inc()
		return
	}
	m.perspectives.WithLabelValues(label, "ok").Inc()
	m.perspectiveLatency.WithLabelValues(label).Observe(latency.Seconds())
	if tokens > 0 {
		m.perspectiveTokens.WithLabelValues(label).Add(float64(tokens))
	}
}

// RateLimited counts one rejected request. Its signature matches ratelimit.Config.OnReject.
func (m *Metrics) RateLimited(string) {
	m.rateLimited.Inc()
}

func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	if strings.HasPrefix(method, "notifications/") {
		return "notifications"
	}
	return otherLabel
}

func (m *Metrics) providerLabel(provider string) string {
	if m.providers[provider] {
		return provider
	}
	return otherLabel
}

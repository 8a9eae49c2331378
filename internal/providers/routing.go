// ABOUTME: Model-to-provider routing and per-provider defaults
// ABOUTME: Explicit model lists win, then name patterns, then an OpenAI-compatible fallback

package providers

import (
	"fmt"
	"strings"
)

// Well-known provider names.
const (
	OpenAI       = "openai"
	OpenAINative = "openai-native"
	Anthropic    = "anthropic"
	Gemini       = "gemini"
	Google       = "google"
	OpenRouter   = "openrouter"
	Groq         = "groq"
	Perplexity   = "perplexity"
	DeepSeek     = "deepseek"
	Mistral      = "mistral"
)

// Provider describes one configured upstream vendor.
type Provider struct {
	Name        string
	DisplayName string
	BaseURL     string
	APIKey      string
	// Models lists model IDs served by this provider. Checked before name patterns.
	Models []string
}

// Label is the name shown to callers: DisplayName, or Name when unset.
func (p *Provider) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func (p *Provider) serves(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// defaultBaseURLs are used when a provider is configured without base_url.
var defaultBaseURLs = map[string]string{
	OpenAI:       "https://api.openai.com/v1",
	OpenAINative: "https://api.openai.com/v1",
	Anthropic:    "https://api.anthropic.com",
	Gemini:       "https://generativelanguage.googleapis.com/v1beta",
	Google:       "https://generativelanguage.googleapis.com/v1beta",
	OpenRouter:   "https://openrouter.ai/api/v1",
	Groq:         "https://api.groq.com/openai/v1",
	Perplexity:   "https://api.perplexity.ai",
	DeepSeek:     "https://api.deepseek.com/v1",
	Mistral:      "https://api.mistral.ai/v1",
}

// DefaultBaseURL returns the public API root for a well-known provider, or "".
func DefaultBaseURL(provider string) string {
	return defaultBaseURLs[provider]
}

var defaultModels = map[string]string{
	OpenAI:       "gpt-4o",
	OpenAINative: "gpt-4o",
	Anthropic:    "claude-3-5-sonnet-20241022",
	Gemini:       "gemini-2.0-flash-exp",
	Google:       "gemini-2.0-flash-exp",
	OpenRouter:   "meta-llama/llama-3.2-90b-vision-instruct",
	Groq:         "llama-3.1-70b-versatile",
	Perplexity:   "llama-3.1-sonar-large-128k-online",
	DeepSeek:     "deepseek-chat",
	Mistral:      "mistral-large-latest",
}

// DefaultModel returns the model used for a preferred provider that has no
// explicit model preference. Unknown providers fall back to gpt-4o.
func DefaultModel(provider string) string {
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return "gpt-4o"
}

// Router resolves model IDs to configured providers.
type Router struct {
	ordered []*Provider
	byName  map[string]*Provider
}

// NewRouter indexes the given providers. Duplicate names are rejected.
func NewRouter(providers []Provider) (*Router, error) {
	r := &Router{byName: make(map[string]*Provider, len(providers))}
	for i := range providers {
		p := providers[i]
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("provider %q configured twice", p.Name)
		}
		if p.BaseURL == "" {
			p.BaseURL = DefaultBaseURL(p.Name)
		}
		p.BaseURL = strings.TrimRight(p.BaseURL, "/")
		r.ordered = append(r.ordered, &p)
		r.byName[p.Name] = &p
	}
	return r, nil
}

// Names returns the configured provider names in configuration order.
func (r *Router) Names() []string {
	names := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		names[i] = p.Name
	}
	return names
}

// Resolve returns the provider that should serve model.
func (r *Router) Resolve(model string) (*Provider, error) {
	for _, p := range r.ordered {
		if p.serves(model) {
			return p, nil
		}
	}

	lower := strings.ToLower(model)
	var candidates []string
	switch {
	case containsAny(lower, "gpt", "o1", "o3", "o4"):
		candidates = []string{OpenAI, OpenAINative}
	case strings.Contains(lower, "claude"):
		candidates = []string{Anthropic}
	case strings.Contains(lower, "gemini"):
		candidates = []string{Gemini, Google}
	case containsAny(lower, "llama", "mistral", "mixtral"):
		candidates = []string{OpenRouter, Groq}
	case strings.Contains(lower, "deepseek"):
		candidates = []string{DeepSeek}
	case strings.Contains(lower, "sonar"):
		candidates = []string{Perplexity}
	default:
		candidates = []string{OpenAI, OpenRouter}
	}

	for _, name := range candidates {
		if p, ok := r.byName[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvider, model)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ABOUTME: Tests for model-to-provider routing
// ABOUTME: Covers explicit model lists, name patterns, and fallbacks

package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Resolve(t *testing.T) {
	r, err := NewRouter([]Provider{
		{Name: OpenAI},
		{Name: Anthropic},
		{Name: Gemini},
		{Name: Groq},
		{Name: DeepSeek},
		{Name: Perplexity},
		{Name: OpenRouter, Models: []string{"qwen/qwen-2.5-72b"}},
	})
	require.NoError(t, err)

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-5-2025-08-07", OpenAI},
		{"o3-mini", OpenAI},
		{"claude-3-5-sonnet-20241022", Anthropic},
		{"gemini-2.0-flash-exp", Gemini},
		{"llama-3.1-70b-versatile", OpenRouter},
		{"mixtral-8x7b", OpenRouter},
		{"deepseek-chat", DeepSeek},
		{"sonar-pro", Perplexity},
		{"qwen/qwen-2.5-72b", OpenRouter},
		{"some-unknown-model", OpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := r.Resolve(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestRouter_SecondaryCandidates(t *testing.T) {
	r, err := NewRouter([]Provider{{Name: Groq}, {Name: Google}})
	require.NoError(t, err)

	p, err := r.Resolve("llama-3.1-8b")
	require.NoError(t, err)
	assert.Equal(t, Groq, p.Name)

	p, err = r.Resolve("gemini-pro")
	require.NoError(t, err)
	assert.Equal(t, Google, p.Name)

	_, err = r.Resolve("claude-3-haiku")
	assert.True(t, errors.Is(err, ErrNoProvider))
}

func TestRouter_DefaultsAndValidation(t *testing.T) {
	r, err := NewRouter([]Provider{{Name: Anthropic, BaseURL: "https://proxy.example/"}, {Name: DeepSeek}})
	require.NoError(t, err)

	p, err := r.Resolve("claude")
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example", p.BaseURL)

	p, err = r.Resolve("deepseek-coder")
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1", p.BaseURL)

	_, err = NewRouter([]Provider{{Name: OpenAI}, {Name: OpenAI}})
	assert.Error(t, err)

	_, err = NewRouter([]Provider{{}})
	assert.Error(t, err)
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "claude-3-5-sonnet-20241022", DefaultModel(Anthropic))
	assert.Equal(t, "deepseek-chat", DefaultModel(DeepSeek))
	assert.Equal(t, "gpt-4o", DefaultModel("nonexistent"))
}

func TestRouter_NamesAndLabel(t *testing.T) {
	r, err := NewRouter([]Provider{
		{Name: Anthropic, DisplayName: "Anthropic"},
		{Name: OpenAI},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{Anthropic, OpenAI}, r.Names())

	p, err := r.Resolve("claude-3-haiku")
	require.NoError(t, err)
	assert.Equal(t, "Anthropic", p.Label())

	p, err = r.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, OpenAI, p.Label())
}

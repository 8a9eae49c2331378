// ABOUTME: Tests for the tool registry and the documentation search tool.
// ABOUTME: Covers schema compilation failures and search result formatting.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
)

func noopTool(context.Context, json.RawMessage, *auth.Principal) (string, error) {
	return "", nil
}

func TestNewToolRegistry_Validation(t *testing.T) {
	valid := json.RawMessage(`{"type":"object"}`)

	_, err := NewToolRegistry(ToolDefinition{Name: "", InputSchema: valid, Handler: noopTool})
	assert.Error(t, err)

	_, err = NewToolRegistry(
		ToolDefinition{Name: "a", InputSchema: valid, Handler: noopTool},
		ToolDefinition{Name: "a", InputSchema: valid, Handler: noopTool},
	)
	assert.Error(t, err)

	_, err = NewToolRegistry(ToolDefinition{Name: "a", InputSchema: valid})
	assert.Error(t, err)

	_, err = NewToolRegistry(ToolDefinition{Name: "a", InputSchema: json.RawMessage(`{"type":`), Handler: noopTool})
	assert.Error(t, err)

	_, err = NewToolRegistry(ToolDefinition{Name: "a", InputSchema: json.RawMessage(`{"type":"not-a-type"}`), Handler: noopTool})
	assert.Error(t, err)
}

func TestToolRegistry_Lookup(t *testing.T) {
	r, err := DefaultTools(noopTool)
	require.NoError(t, err)

	tool, ok := r.Lookup(ToolSearchDocumentation)
	require.True(t, ok)
	assert.Equal(t, ToolSearchDocumentation, tool.Name)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestSearchDocumentation(t *testing.T) {
	out, err := searchDocumentation(context.Background(), json.RawMessage(`{"query":"api keys"}`), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 result(s) for \"api keys\":")
	assert.Contains(t, out, "## API Configuration\n")
	assert.Contains(t, out, "[View more →](https://polydev.ai/dashboard/api-keys)")

	out, err = searchDocumentation(context.Background(), json.RawMessage(`{"query":"polydev"}`), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 result(s)")
}

func TestSearchDocumentation_NoResults(t *testing.T) {
	out, err := searchDocumentation(context.Background(), json.RawMessage(`{"query":"kubernetes"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "No documentation found for query: \"kubernetes\"\n\n"+
		"Try searching for terms like \"getting started\", \"mcp\", \"api keys\", or \"configuration\".", out)
}

func TestSearchDocumentation_RequiresQuery(t *testing.T) {
	for _, args := range []string{`{}`, `{"query":""}`, `{"query":5}`, ``, `[]`} {
		_, err := searchDocumentation(context.Background(), json.RawMessage(args), nil)
		require.Error(t, err, args)
		assert.True(t, errors.Is(err, ErrInvalidArgument), args)
	}
}

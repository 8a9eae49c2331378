// ABOUTME: search_documentation tool over a small static documentation index
// ABOUTME: Case-insensitive substring match on title and body, rendered as markdown

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
)

const docsBaseURL = "https://polydev.ai"

type docEntry struct {
	title   string
	content string
	path    string
}

var documentation = []docEntry{
	{
		title:   "Getting Started",
		content: "Learn how to set up Polydev with your LLM providers and start getting multiple AI perspectives.",
		path:    "/docs",
	},
	{
		title:   "MCP Integration",
		content: "Connect your favorite MCP clients to Polydev for seamless multi-model access.",
		path:    "/docs/mcp-integration",
	},
	{
		title:   "API Configuration",
		content: "Configure API keys for OpenAI, Anthropic, Google, and other LLM providers.",
		path:    "/dashboard/api-keys",
	},
}

func searchDocumentation(_ context.Context, args json.RawMessage, _ *auth.Principal) (string, error) {
	var params struct {
		Query json.RawMessage `json:"query"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", InvalidArgument("query is required and must be a string")
		}
	}

	var query string
	if json.Unmarshal(params.Query, &query) != nil || query == "" {
		return "", InvalidArgument("query is required and must be a string")
	}

	needle := strings.ToLower(query)
	var results []docEntry
	for _, d := range documentation {
		if strings.Contains(strings.ToLower(d.title), needle) || strings.Contains(strings.ToLower(d.content), needle) {
			results = append(results, d)
		}
	}

	if len(results) == 0 {
		return fmt.Sprintf("No documentation found for query: \"%s\"\n\n"+
			"Try searching for terms like \"getting started\", \"mcp\", \"api keys\", or \"configuration\".", query), nil
	}

	var b strings.Builder
	b.WriteString("# Documentation Search Results\n\n")
	fmt.Fprintf(&b, "Found %d result(s) for \"%s\":\n\n", len(results), query)
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n%s\n[View more →](%s%s)\n\n", r.title, r.content, docsBaseURL, r.path)
	}
	return b.String(), nil
}

// ABOUTME: Static tool catalog exposed through tools/list and dispatched by tools/call
// ABOUTME: Input schemas are compiled once at startup to prove they are valid JSON Schema

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
)

// ErrInvalidArgument marks caller-fixable tool argument errors. Handler errors
// matching it are answered with -32602 and their message; any other handler
// error is -32603.
var ErrInvalidArgument = errors.New("invalid argument")

// argumentError carries a caller-facing message and matches ErrInvalidArgument.
type argumentError struct {
	msg string
}

func (e *argumentError) Error() string { return e.msg }

func (e *argumentError) Is(target error) bool { return target == ErrInvalidArgument }

// InvalidArgument returns an error matching ErrInvalidArgument whose message
// is the formatted text.
func InvalidArgument(format string, args ...any) error {
	return &argumentError{msg: fmt.Sprintf(format, args...)}
}

// ToolHandler executes one tool call for an authenticated principal and
// returns the text content of the result.
type ToolHandler func(ctx context.Context, args json.RawMessage, principal *auth.Principal) (string, error)

// ToolDefinition describes one callable tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// ToolRegistry is an immutable, ordered tool catalog.
type ToolRegistry struct {
	tools  []ToolDefinition
	byName map[string]int
}

// NewToolRegistry validates and indexes the given tools. Names must be unique,
// handlers non-nil, and schemas must compile.
func NewToolRegistry(tools ...ToolDefinition) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:  make([]ToolDefinition, 0, len(tools)),
		byName: make(map[string]int, len(tools)),
	}

	for _, t := range tools {
		if t.Name == "" {
			return nil, errors.New("tool name is required")
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", t.Name)
		}
		if err := compileSchema(t.Name, t.InputSchema); err != nil {
			return nil, err
		}
		r.byName[t.Name] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return r, nil
}

func compileSchema(name string, schema json.RawMessage) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	schemaURL := fmt.Sprintf("https://polydev.ai/schemas/tools/%s.schema.json", name)
	if err := c.AddResource(schemaURL, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("tool %q schema load failed: %w", name, err)
	}
	if _, err := c.Compile(schemaURL); err != nil {
		return fmt.Errorf("tool %q schema compile failed: %w", name, err)
	}
	return nil
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (ToolDefinition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return r.tools[i], true
}

// List returns the catalog in registration order.
func (r *ToolRegistry) List() []MCPToolInfo {
	out := make([]MCPToolInfo, len(r.tools))
	for i, t := range r.tools {
		out[i] = MCPToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}
	return out
}

// Tool names.
const (
	ToolGetPerspectives     = "get_perspectives"
	ToolSearchDocumentation = "search_documentation"
)

var perspectivesSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "prompt": {
      "type": "string",
      "description": "The prompt to send to multiple AI models"
    },
    "models": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Models to query. Defaults to your configured preferences."
    },
    "temperature": {
      "type": "number",
      "minimum": 0,
      "maximum": 2,
      "description": "Sampling temperature (0-2)"
    },
    "max_tokens": {
      "type": "number",
      "minimum": 1,
      "maximum": 8000,
      "description": "Maximum tokens per response (1-8000)"
    },
    "provider_settings": {
      "type": "object",
      "description": "Per-provider temperature and max_tokens, keyed by provider name",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "temperature": {"type": "number", "minimum": 0, "maximum": 2},
          "max_tokens": {"type": "number", "minimum": 1, "maximum": 8000}
        }
      }
    }
  },
  "required": ["prompt"]
}`)

var documentationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "Search query for documentation"
    }
  },
  "required": ["query"]
}`)

// PerspectivesTool builds the get_perspectives definition around handler.
func PerspectivesTool(handler ToolHandler) ToolDefinition {
	return ToolDefinition{
		Name:        ToolGetPerspectives,
		Description: "Get multiple AI perspectives on a prompt by querying several language models in parallel",
		InputSchema: perspectivesSchema,
		Handler:     handler,
	}
}

// DocumentationTool builds the search_documentation definition.
func DocumentationTool() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchDocumentation,
		Description: "Search Polydev documentation",
		InputSchema: documentationSchema,
		Handler:     searchDocumentation,
	}
}

// DefaultTools returns the standard two-tool catalog.
func DefaultTools(perspectives ToolHandler) (*ToolRegistry, error) {
	return NewToolRegistry(PerspectivesTool(perspectives), DocumentationTool())
}

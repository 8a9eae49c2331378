// ABOUTME: Argument parsing and validation for the get_perspectives tool
// ABOUTME: Rejects malformed arguments before any provider is contacted

package perspectives

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/polydev-ai/polydev-mcp/internal/mcp"
)

// ErrInvalidArgument marks caller-fixable argument errors. It is the MCP tool
// sentinel, so the dispatcher answers these with -32602.
var ErrInvalidArgument = mcp.ErrInvalidArgument

// Argument limits.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 8000
)

// InvalidArgument returns an error matching ErrInvalidArgument whose message
// is the formatted text.
func InvalidArgument(format string, args ...any) error {
	return mcp.InvalidArgument(format, args...)
}

// ProviderSettings overrides sampling for every model routed to one provider.
type ProviderSettings struct {
	Temperature *float64
	MaxTokens   *int
}

// Request is a validated get_perspectives call. Nil optional fields fall back
// to the caller's preferences and then to built-in defaults.
type Request struct {
	Prompt      string
	Models      []string
	Temperature *float64
	MaxTokens   *int
	// ProviderSettings is keyed by provider name and beats the call-wide values.
	ProviderSettings map[string]ProviderSettings
}

// ParseRequest validates raw tool arguments.
func ParseRequest(args json.RawMessage) (*Request, error) {
	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(args)) > 0 && !bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		if err := json.Unmarshal(args, &fields); err != nil {
			return nil, InvalidArgument("arguments must be an object")
		}
	}

	req := &Request{}

	var prompt string
	raw, ok := fields["prompt"]
	if !ok || json.Unmarshal(raw, &prompt) != nil || prompt == "" {
		return nil, InvalidArgument("prompt is required and must be a string")
	}
	req.Prompt = prompt

	if raw, ok := fields["models"]; ok && !isNull(raw) {
		var models []string
		if err := json.Unmarshal(raw, &models); err != nil {
			return nil, InvalidArgument("models must be an array of strings")
		}
		for _, m := range models {
			if m == "" {
				return nil, InvalidArgument("models must not contain empty names")
			}
		}
		req.Models = models
	}

	if raw, ok := fields["temperature"]; ok && !isNull(raw) {
		temp, err := parseTemperature("temperature", raw)
		if err != nil {
			return nil, err
		}
		req.Temperature = &temp
	}

	if raw, ok := fields["max_tokens"]; ok && !isNull(raw) {
		maxTokens, err := parseMaxTokens("max_tokens", raw)
		if err != nil {
			return nil, err
		}
		req.MaxTokens = &maxTokens
	}

	if raw, ok := fields["provider_settings"]; ok && !isNull(raw) {
		settings, err := parseProviderSettings(raw)
		if err != nil {
			return nil, err
		}
		req.ProviderSettings = settings
	}

	return req, nil
}

func parseTemperature(name string, raw json.RawMessage) (float64, error) {
	var temp float64
	if err := json.Unmarshal(raw, &temp); err != nil {
		return 0, InvalidArgument("%s must be a number", name)
	}
	if temp < MinTemperature || temp > MaxTemperature {
		return 0, InvalidArgument("%s must be between %g and %g", name, MinTemperature, MaxTemperature)
	}
	return temp, nil
}

func parseMaxTokens(name string, raw json.RawMessage) (int, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || n != math.Trunc(n) {
		return 0, InvalidArgument("%s must be an integer", name)
	}
	if n < MinMaxTokens || n > MaxMaxTokens {
		return 0, InvalidArgument("%s must be between %d and %d", name, MinMaxTokens, MaxMaxTokens)
	}
	return int(n), nil
}

// parseProviderSettings validates {"<provider>": {"temperature": n, "max_tokens": n}}.
// Providers are checked in name order so the reported error is stable.
func parseProviderSettings(raw json.RawMessage) (map[string]ProviderSettings, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, InvalidArgument("provider_settings must be an object")
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	settings := make(map[string]ProviderSettings, len(entries))
	for _, name := range names {
		prefix := "provider_settings." + name
		var fields map[string]json.RawMessage
		if isNull(entries[name]) || json.Unmarshal(entries[name], &fields) != nil {
			return nil, InvalidArgument("%s must be an object", prefix)
		}

		var ps ProviderSettings
		if raw, ok := fields["temperature"]; ok && !isNull(raw) {
			temp, err := parseTemperature(prefix+".temperature", raw)
			if err != nil {
				return nil, err
			}
			ps.Temperature = &temp
		}
		if raw, ok := fields["max_tokens"]; ok && !isNull(raw) {
			maxTokens, err := parseMaxTokens(prefix+".max_tokens", raw)
			if err != nil {
				return nil, err
			}
			ps.MaxTokens = &maxTokens
		}
		settings[name] = ps
	}
	return settings, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

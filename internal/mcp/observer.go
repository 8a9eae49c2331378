// ABOUTME: Observer hooks for dispatched JSON-RPC requests
// ABOUTME: Default observer logs via slog; metrics observers plug in alongside it

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Observer is notified around every dispatched request. Implementations must
// be safe for concurrent use and must not block.
type Observer interface {
	OnRequest(ctx context.Context, method string, id json.RawMessage, authPresent bool)
	// OnResponse receives a nil resp for notifications.
	OnResponse(ctx context.Context, method string, resp *JSONRPCResponse, elapsed time.Duration)
}

// NewLogObserver returns an Observer that writes request and response lines to logger.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &logObserver{logger: logger}
}

type logObserver struct {
	logger *slog.Logger
}

func (o *logObserver) OnRequest(ctx context.Context, method string, id json.RawMessage, authPresent bool) {
	o.logger.DebugContext(ctx, "MCP request",
		"method", method,
		"id", string(id),
		"auth_present", authPresent,
	)
}

func (o *logObserver) OnResponse(ctx context.Context, method string, resp *JSONRPCResponse, elapsed time.Duration) {
	switch {
	case resp == nil:
		o.logger.DebugContext(ctx, "MCP notification accepted", "method", method)
	case resp.Error != nil:
		o.logger.InfoContext(ctx, "MCP request failed",
			"method", method,
			"code", resp.Error.Code,
			"message", resp.Error.Message,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	default:
		o.logger.DebugContext(ctx, "MCP request complete",
			"method", method,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
}

// Observers fans notifications out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var list multiObserver
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) OnRequest(ctx context.Context, method string, id json.RawMessage, authPresent bool) {
	for _, o := range m {
		o.OnRequest(ctx, method, id, authPresent)
	}
}

func (m multiObserver) OnResponse(ctx context.Context, method string, resp *JSONRPCResponse, elapsed time.Duration) {
	for _, o := range m {
		o.OnResponse(ctx, method, resp, elapsed)
	}
}

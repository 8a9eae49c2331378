// ABOUTME: Provider invocation contract shared by the aggregator and vendor clients
// ABOUTME: One Invoke call is one upstream model request with no shared state between calls

package providers

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for provider resolution.
var (
	ErrNoProvider = errors.New("no provider configured for model")
	ErrNoAPIKey   = errors.New("provider has no API key")
)

// Call is a single model request.
type Call struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is a successful model response.
type Result struct {
	// Provider is the display label of the vendor that answered, if known.
	Provider   string
	Content    string
	TokensUsed int
	Latency    time.Duration
}

// Invoker performs one upstream model call. Implementations must be safe for
// concurrent use; the aggregator calls Invoke from one goroutine per model.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (*Result, error)
}

// FuncInvoker adapts a function to the Invoker interface.
type FuncInvoker func(ctx context.Context, call Call) (*Result, error)

// Invoke calls f.
func (f FuncInvoker) Invoke(ctx context.Context, call Call) (*Result, error) {
	return f(ctx, call)
}

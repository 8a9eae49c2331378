// Package perspectives implements the get_perspectives tool.
//
// # Flow
//
// A call is parsed into a Request, the model list and sampling parameters are
// resolved, and every model is invoked concurrently through a providers.Invoker.
// Each model gets its own timeout, enforced even against an invoker that
// ignores its context. A failure, timeout, or panic in one model
// becomes an Outcome carrying the error and never affects its siblings. The
// settled outcomes are summarized into a Report and rendered as markdown.
//
// # Model Resolution
//
// In order:
//
//  1. models from the call arguments
//  2. the caller's preferred providers, each mapped through their model
//     overrides or providers.DefaultModel
//  3. the caller's default model
//  4. the aggregator's default models
//
// Temperature and max tokens come from provider_settings for the model's
// provider when the call supplies them, then from the call arguments, then
// from stored preference defaults, then 0.7 and 1000. The provider is found
// through the configured providers.Router, which also supplies the display
// name shown in each section header.
//
// # Invalid Input
//
// Argument errors match ErrInvalidArgument, which is mcp.ErrInvalidArgument,
// and are returned before any provider is contacted.
package perspectives

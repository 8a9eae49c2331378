// Package providers invokes upstream LLM vendors for a single model.
//
// Invoker is the seam the aggregator depends on. HTTPInvoker is the real
// implementation: a Router maps each model to a configured Provider, by an
// explicit Models list first and then by name pattern, and the request is
// shaped for that vendor's API:
//
//	anthropic       POST /v1/messages
//	gemini, google  POST /models/<model>:generateContent
//	everything else POST /chat/completions (OpenAI compatible)
//
// Network errors, 429 and 5xx responses are retried with exponential
// backoff. Other 4xx responses fail immediately.
package providers

// Package mcp implements the Model Context Protocol endpoint for AI tool clients.
//
// # Protocol
//
// JSON-RPC 2.0 over HTTP POST to a single route (/mcp, aliased as /api/mcp).
// Dispatch is table driven:
//
//	initialize      no auth   echoes the client's protocolVersion
//	initialized     no auth   notification, empty 200 response
//	notifications/* no auth   notification, empty 200 response
//	tools/list      no auth   returns the ToolRegistry catalog
//	tools/call      bearer    runs the named tool for the authenticated principal
//	resources/list  no auth   always empty
//	prompts/list    no auth   always empty
//
// Anything else is -32601. Request ids are echoed verbatim on every response.
//
// # Authentication
//
// Only tools/call needs credentials, so clients can discover tools before
// authenticating. A rejected credential yields a -32602 envelope with HTTP 401
// and a WWW-Authenticate challenge.
//
// # Tool Errors
//
// A handler error matching ErrInvalidArgument becomes -32602 with the error's
// message. Any other handler error is -32603.
//
// # Transport
//
// Every response carries permissive CORS headers. GET returns a static OAuth
// authorization server document, OPTIONS answers preflight, and other verbs
// get 405 with a small JSON error body.
//
// # Usage
//
//	tools, err := mcp.DefaultTools(aggregator.Handle)
//	server, err := mcp.NewServer(mcp.Config{
//	    Authenticator: authenticator,
//	    Tools:         tools,
//	})
//	server.RegisterRoutes(mux)
package mcp

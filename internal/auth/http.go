// ABOUTME: HTTP-level helpers for bearer authentication on the MCP endpoint
// ABOUTME: Extracts bearer tokens and builds the WWW-Authenticate challenge

package auth

import (
	"net/http"
	"strings"
)

// BearerChallenge is sent in WWW-Authenticate on every authentication failure.
const BearerChallenge = `Bearer realm="mcp", error="invalid_token"`

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful). An empty
// token after the scheme is returned as-is so format classification rejects it.
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	return strings.TrimPrefix(authHeader, "Bearer "), ""
}

// SetChallenge marks an HTTP response as an authentication failure.
// The caller still writes the body.
func SetChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", BearerChallenge)
}

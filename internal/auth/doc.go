// Package auth authenticates MCP callers by bearer token.
//
// # Token Schemes
//
// Two credential namespaces coexist, distinguished only by prefix:
//
//   - pd_ tokens: long-lived personal tokens. The server stores the SHA-256 hex
//     digest of the full token and an active flag. Valid while active.
//
//   - polydev_ tokens: OAuth-style access tokens stored by literal value with a
//     revoked flag and an expiry. A known but expired token is reported
//     separately from an unknown one.
//
// Anything else, including an empty token after "Bearer ", is rejected as an
// unsupported format without touching storage.
//
// # Authentication
//
//	a, err := auth.NewAuthenticator(auth.Config{Tokens: store})
//	principal, err := a.Authenticate(ctx, r.Header.Get("Authorization"))
//
// Failures are *AuthError values carrying an ErrorKind and a caller-safe
// message. On success the token's last_used_at is updated on a detached
// goroutine; a failed update is logged and never affects the result.
// Config.OnTouch observes each update attempt.
//
// # Minting
//
// NewHashedToken and NewAccessToken generate credentials for the admin CLI.
package auth

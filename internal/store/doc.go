// Package store provides persistent storage for the MCP server using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with narrow interfaces:
//
//   - TokenStore: Hashed (pd_) and expiring (polydev_) MCP credentials
//   - PreferenceStore: Per-user provider and model preferences
//   - UsageStore: Perspective usage ledger and summaries
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. MockStore is an
// in-memory implementation for tests.
//
// # Token Namespaces
//
// Hashed tokens never store the secret itself, only its SHA-256 hex digest and a
// display preview. They remain valid until deactivated:
//
//	mcp_user_tokens(id, user_id, token_name, token_hash, token_preview, active, last_used_at, created_at)
//
// Access tokens are stored by literal value and carry expiry and revocation:
//
//	mcp_access_tokens(token, client_id, user_id, expires_at, revoked, last_used_at, created_at)
//
// # Timestamps
//
// All timestamps are stored as RFC3339Nano text in UTC.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/polydev/mcp.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	tok, err := s.GetActiveHashedToken(ctx, digest)
package store

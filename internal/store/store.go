// ABOUTME: Store interfaces and data types for MCP token, preference, and usage persistence
// ABOUTME: Defines the narrow repository surface the auth and perspectives packages depend on

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateToken is returned when a token with the same hash or value already exists
var ErrDuplicateToken = errors.New("token already exists")

// HashedToken is a long-lived MCP token (pd_ prefix). Only its SHA-256 digest is stored.
// Deactivation is the only revocation path; it never expires on its own.
type HashedToken struct {
	ID         string
	UserID     string
	Name       string
	TokenHash  string // hex-encoded SHA-256 of the full token string
	Preview    string // first 12 + "..." + last 8 characters, safe to display
	Active     bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// AccessToken is an OAuth-style access token (polydev_ prefix), stored by literal value.
// It is usable iff Revoked is false and the current time is before ExpiresAt.
type AccessToken struct {
	Token      string
	ClientID   string
	UserID     string
	ExpiresAt  time.Time
	Revoked    bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Preferences holds a user's per-provider model choices and generation defaults.
type Preferences struct {
	UserID             string
	PreferredProviders []string          // ordered provider names, e.g. ["openai", "anthropic"]
	ModelPreferences   map[string]string // provider -> model override
	DefaultModel       string
	DefaultTemperature *float64
	DefaultMaxTokens   *int
	UpdatedAt          time.Time
}

// PerspectiveUsage records the outcome of one provider invocation made by get_perspectives.
type PerspectiveUsage struct {
	ID         string
	RequestID  string // shared by every model consulted in one tools/call
	UserID     string
	Model      string
	TokensUsed int
	LatencyMs  int64
	Succeeded  bool
	CreatedAt  time.Time
}

// UsageFilter narrows a usage summary query.
type UsageFilter struct {
	UserID *string
	Since  *time.Time
}

// UsageSummary aggregates PerspectiveUsage rows.
type UsageSummary struct {
	Invocations int64
	Failures    int64
	TotalTokens int64
}

// TokenStore persists both MCP token namespaces.
type TokenStore interface {
	CreateHashedToken(ctx context.Context, token *HashedToken) error
	// GetActiveHashedToken returns ErrNotFound unless an active token with the hash exists.
	GetActiveHashedToken(ctx context.Context, tokenHash string) (*HashedToken, error)
	TouchHashedToken(ctx context.Context, tokenHash string, at time.Time) error
	DeactivateHashedToken(ctx context.Context, id string) error
	ListHashedTokens(ctx context.Context, userID string) ([]*HashedToken, error)

	CreateAccessToken(ctx context.Context, token *AccessToken) error
	// GetUnrevokedAccessToken returns ErrNotFound unless a non-revoked token exists.
	// Expiry is not checked here so callers can distinguish expired from unknown.
	GetUnrevokedAccessToken(ctx context.Context, token string) (*AccessToken, error)
	TouchAccessToken(ctx context.Context, token string, at time.Time) error
	RevokeAccessToken(ctx context.Context, token string) error
}

// PreferenceStore persists per-user model preferences.
type PreferenceStore interface {
	// GetPreferences returns ErrNotFound when the user has never saved preferences.
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, prefs *Preferences) error
}

// UsageStore persists the perspective usage ledger.
type UsageStore interface {
	SaveUsage(ctx context.Context, usage *PerspectiveUsage) error
	GetUsageSummary(ctx context.Context, filter UsageFilter) (*UsageSummary, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	TokenStore
	PreferenceStore
	UsageStore

	// Ping reports whether the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// ABOUTME: Dual-scheme bearer token authenticator for MCP tools/call requests
// ABOUTME: Resolves pd_ and polydev_ credentials to a Principal or a typed AuthError

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polydev-ai/polydev-mcp/internal/store"
)

// ErrorKind classifies authentication failures.
type ErrorKind int

const (
	KindMissingOrMalformedHeader ErrorKind = iota + 1
	KindUnsupportedTokenFormat
	KindInvalidOrExpiredToken
	KindTokenExpired
	// KindLookupFailed means the token store itself failed; the credential may be fine.
	KindLookupFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingOrMalformedHeader:
		return "missing_or_malformed_header"
	case KindUnsupportedTokenFormat:
		return "unsupported_token_format"
	case KindInvalidOrExpiredToken:
		return "invalid_or_expired_token"
	case KindTokenExpired:
		return "token_expired"
	case KindLookupFailed:
		return "lookup_failed"
	default:
		return "unknown"
	}
}

// AuthError is returned by Authenticate for every rejected credential.
// Message is safe to return to the caller.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *AuthError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// Caller-facing messages.
const (
	msgMissingHeader     = "Missing or invalid Authorization header. Use Bearer token."
	msgUnsupportedFormat = "Unsupported token format. Use OAuth tokens (polydev_) or MCP tokens (pd_)"
	msgInvalidMCPToken   = "Invalid or expired MCP token"
	msgInvalidOAuthToken = "Invalid or expired OAuth token"
	msgExpiredOAuthToken = "OAuth token has expired"
	msgLookupFailed      = "Unable to validate token"
	defaultTouchTimeout  = 5 * time.Second
)

// Config holds configuration for the Authenticator.
type Config struct {
	Tokens store.TokenStore
	Logger *slog.Logger
	// Now overrides the clock used for expiry checks and last-used stamps.
	Now func() time.Time
	// TouchTimeout bounds the detached last_used_at update.
	TouchTimeout time.Duration
	// OnTouch, if set, is called after each last_used_at update attempt.
	OnTouch func(CredentialKind, error)
}

// Authenticator validates bearer credentials against the token store.
// It holds no per-request state and is safe for concurrent use.
type Authenticator struct {
	tokens       store.TokenStore
	logger       *slog.Logger
	now          func() time.Time
	touchTimeout time.Duration
	onTouch      func(CredentialKind, error)
}

// NewAuthenticator creates an Authenticator with the given configuration.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("token store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	touchTimeout := cfg.TouchTimeout
	if touchTimeout <= 0 {
		touchTimeout = defaultTouchTimeout
	}

	return &Authenticator{
		tokens:       cfg.Tokens,
		logger:       logger,
		now:          now,
		touchTimeout: touchTimeout,
		onTouch:      cfg.OnTouch,
	}, nil
}

// Authenticate resolves the raw Authorization header value to a Principal.
// All failures are *AuthError values.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*Principal, error) {
	token, errMsg := extractBearerToken(authHeader)
	if errMsg != "" {
		return nil, &AuthError{Kind: KindMissingOrMalformedHeader, Message: msgMissingHeader}
	}

	kind := ClassifyCredential(token)
	switch kind {
	case CredentialHashed:
		return a.authenticateHashed(ctx, token)
	case CredentialExpiring:
		return a.authenticateExpiring(ctx, token)
	default:
		return nil, &AuthError{Kind: KindUnsupportedTokenFormat, Message: msgUnsupportedFormat}
	}
}

func (a *Authenticator) authenticateHashed(ctx context.Context, token string) (*Principal, error) {
	digest := HashToken(token)

	record, err := a.tokens.GetActiveHashedToken(ctx, digest)
	if err != nil {
		return nil, a.lookupError(err, msgInvalidMCPToken, CredentialHashed)
	}

	a.touch(CredentialHashed, func(ctx context.Context, at time.Time) error {
		return a.tokens.TouchHashedToken(ctx, digest, at)
	})

	return &Principal{ID: record.UserID, Credential: CredentialHashed}, nil
}

func (a *Authenticator) authenticateExpiring(ctx context.Context, token string) (*Principal, error) {
	record, err := a.tokens.GetUnrevokedAccessToken(ctx, token)
	if err != nil {
		return nil, a.lookupError(err, msgInvalidOAuthToken, CredentialExpiring)
	}

	if !a.now().Before(record.ExpiresAt) {
		return nil, &AuthError{Kind: KindTokenExpired, Message: msgExpiredOAuthToken}
	}

	a.touch(CredentialExpiring, func(ctx context.Context, at time.Time) error {
		return a.tokens.TouchAccessToken(ctx, token, at)
	})

	return &Principal{ID: record.UserID, Credential: CredentialExpiring}, nil
}

// lookupError maps a store error onto the caller-facing AuthError.
func (a *Authenticator) lookupError(err error, notFoundMsg string, kind CredentialKind) error {
	if errors.Is(err, store.ErrNotFound) {
		return &AuthError{Kind: KindInvalidOrExpiredToken, Message: notFoundMsg}
	}
	a.logger.Error("token lookup failed", "credential", kind.String(), "error", err)
	return &AuthError{
		Kind:    KindLookupFailed,
		Message: msgLookupFailed,
		Err:     fmt.Errorf("looking up %s token: %w", kind, err),
	}
}

// touch records last use on a detached goroutine. The authentication result
// never waits on it and never observes its failure.
func (a *Authenticator) touch(kind CredentialKind, update func(ctx context.Context, at time.Time) error) {
	at := a.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.touchTimeout)
		defer cancel()

		err := update(ctx, at)
		if err != nil {
			a.logger.Warn("failed to update token last_used_at", "credential", kind.String(), "error", err)
		}
		if a.onTouch != nil {
			a.onTouch(kind, err)
		}
	}()
}

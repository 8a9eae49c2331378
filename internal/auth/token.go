// ABOUTME: Bearer credential classification and minting for the two MCP token formats
// ABOUTME: pd_ tokens are looked up by SHA-256 digest, polydev_ tokens by literal value

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Token prefixes. These are an external contract shared with every issued credential.
const (
	HashedTokenPrefix   = "pd_"
	ExpiringTokenPrefix = "polydev_"
)

// DefaultAccessTokenTTL is the lifetime of newly minted polydev_ tokens.
const DefaultAccessTokenTTL = 30 * 24 * time.Hour

// CredentialKind identifies which token namespace a bearer credential belongs to.
type CredentialKind int

const (
	// CredentialUnsupported is any token that matches neither prefix.
	CredentialUnsupported CredentialKind = iota
	// CredentialHashed is a pd_ token stored as a SHA-256 digest.
	CredentialHashed
	// CredentialExpiring is a polydev_ token stored by value with expiry.
	CredentialExpiring
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialHashed:
		return "hashed"
	case CredentialExpiring:
		return "expiring"
	default:
		return "unsupported"
	}
}

// ClassifyCredential maps a raw token onto exactly one CredentialKind.
// The two prefixes are disjoint, so the order of checks does not matter.
func ClassifyCredential(token string) CredentialKind {
	switch {
	case strings.HasPrefix(token, HashedTokenPrefix):
		return CredentialHashed
	case strings.HasPrefix(token, ExpiringTokenPrefix):
		return CredentialExpiring
	default:
		return CredentialUnsupported
	}
}

// HashToken returns the hex-encoded SHA-256 digest of the full token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenPreview returns a display-safe abbreviation: first 12 and last 8 characters.
func TokenPreview(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:12] + "..." + token[len(token)-8:]
}

// MintedToken is a freshly generated hashed credential. Token is shown once and never stored.
type MintedToken struct {
	Token   string
	Hash    string
	Preview string
}

// NewHashedToken generates a pd_ token from 32 random bytes, hex encoded.
func NewHashedToken() (*MintedToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating token bytes: %w", err)
	}
	token := HashedTokenPrefix + hex.EncodeToString(b)
	return &MintedToken{
		Token:   token,
		Hash:    HashToken(token),
		Preview: TokenPreview(token),
	}, nil
}

// NewAccessToken generates a polydev_ token from 32 random bytes, base64url encoded.
func NewAccessToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token bytes: %w", err)
	}
	return ExpiringTokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

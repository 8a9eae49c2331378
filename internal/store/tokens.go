// ABOUTME: SQLite implementation for the two MCP token namespaces
// ABOUTME: Hashed pd_ tokens are keyed by digest, polydev_ access tokens by literal value

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateHashedToken stores a new hashed MCP token.
// Returns ErrDuplicateToken if a token with the same hash already exists.
func (s *SQLiteStore) CreateHashedToken(ctx context.Context, token *HashedToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO mcp_user_tokens (id, user_id, token_name, token_hash, token_preview, active, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Name,
		token.TokenHash,
		token.Preview,
		boolToInt(token.Active),
		nullTime(token.LastUsedAt),
		token.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("inserting hashed token: %w", err)
	}

	s.logger.Debug("created hashed token", "id", token.ID, "user_id", token.UserID, "preview", token.Preview)
	return nil
}

// GetActiveHashedToken retrieves an active hashed token by its digest.
// Returns ErrNotFound if no active token matches.
func (s *SQLiteStore) GetActiveHashedToken(ctx context.Context, tokenHash string) (*HashedToken, error) {
	query := `
		SELECT id, user_id, token_name, token_hash, token_preview, active, last_used_at, created_at
		FROM mcp_user_tokens
		WHERE token_hash = ? AND active = 1
	`

	token, err := scanHashedToken(s.db.QueryRowContext(ctx, query, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// TouchHashedToken sets last_used_at for the token with the given digest.
func (s *SQLiteStore) TouchHashedToken(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_user_tokens SET last_used_at = ? WHERE token_hash = ?`,
		at.UTC().Format(time.RFC3339Nano), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("updating hashed token last_used_at: %w", err)
	}
	return nil
}

// DeactivateHashedToken marks a hashed token inactive.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) DeactivateHashedToken(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE mcp_user_tokens SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivating hashed token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deactivated hashed token", "id", id)
	return nil
}

// ListHashedTokens returns all hashed tokens for a user, newest first.
func (s *SQLiteStore) ListHashedTokens(ctx context.Context, userID string) ([]*HashedToken, error) {
	query := `
		SELECT id, user_id, token_name, token_hash, token_preview, active, last_used_at, created_at
		FROM mcp_user_tokens
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying hashed tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*HashedToken
	for rows.Next() {
		token, err := scanHashedToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hashed token rows: %w", err)
	}
	return tokens, nil
}

// CreateAccessToken stores a new OAuth-style access token.
// Returns ErrDuplicateToken if the token value already exists.
func (s *SQLiteStore) CreateAccessToken(ctx context.Context, token *AccessToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO mcp_access_tokens (token, client_id, user_id, expires_at, revoked, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.Token,
		token.ClientID,
		token.UserID,
		token.ExpiresAt.UTC().Format(time.RFC3339Nano),
		boolToInt(token.Revoked),
		nullTime(token.LastUsedAt),
		token.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("inserting access token: %w", err)
	}

	s.logger.Debug("created access token", "user_id", token.UserID, "client_id", token.ClientID, "expires_at", token.ExpiresAt)
	return nil
}

// GetUnrevokedAccessToken retrieves a non-revoked access token by value.
// Expired tokens are returned; the caller decides how to report them.
func (s *SQLiteStore) GetUnrevokedAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	query := `
		SELECT token, client_id, user_id, expires_at, revoked, last_used_at, created_at
		FROM mcp_access_tokens
		WHERE token = ? AND revoked = 0
	`

	var (
		t                       AccessToken
		revoked                 int
		lastUsed                sql.NullString
		expiresAtStr, createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&t.Token,
		&t.ClientID,
		&t.UserID,
		&expiresAtStr,
		&revoked,
		&lastUsed,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying access token: %w", err)
	}

	t.Revoked = revoked != 0
	if t.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAtStr); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
		return nil, fmt.Errorf("parsing last_used_at: %w", err)
	}
	return &t, nil
}

// TouchAccessToken sets last_used_at for the given access token.
func (s *SQLiteStore) TouchAccessToken(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_access_tokens SET last_used_at = ? WHERE token = ?`,
		at.UTC().Format(time.RFC3339Nano), token,
	)
	if err != nil {
		return fmt.Errorf("updating access token last_used_at: %w", err)
	}
	return nil
}

// RevokeAccessToken marks an access token revoked.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) RevokeAccessToken(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE mcp_access_tokens SET revoked = 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("revoking access token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanHashedToken scans a single mcp_user_tokens row.
func scanHashedToken(row rowScanner) (*HashedToken, error) {
	var (
		t         HashedToken
		active    int
		lastUsed  sql.NullString
		createdAt string
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Name,
		&t.TokenHash,
		&t.Preview,
		&active,
		&lastUsed,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning hashed token row: %w", err)
	}

	t.Active = active != 0
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
		return nil, fmt.Errorf("parsing last_used_at: %w", err)
	}
	return &t, nil
}

// Ensure SQLiteStore implements TokenStore interface.
var _ TokenStore = (*SQLiteStore)(nil)

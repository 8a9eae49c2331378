// ABOUTME: SQLite implementation for per-user model preferences
// ABOUTME: Provider lists and model overrides are stored as JSON text columns

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetPreferences retrieves a user's preferences.
// Returns ErrNotFound if the user has none.
func (s *SQLiteStore) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	query := `
		SELECT user_id, preferred_providers, model_preferences, default_model,
		       default_temperature, default_max_tokens, updated_at
		FROM user_preferences
		WHERE user_id = ?
	`

	var (
		p                         Preferences
		providersJSON, modelsJSON string
		defaultModel              sql.NullString
		temperature               sql.NullFloat64
		maxTokens                 sql.NullInt64
		updatedAt                 string
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&providersJSON,
		&modelsJSON,
		&defaultModel,
		&temperature,
		&maxTokens,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}

	if err := json.Unmarshal([]byte(providersJSON), &p.PreferredProviders); err != nil {
		return nil, fmt.Errorf("decoding preferred_providers: %w", err)
	}
	if err := json.Unmarshal([]byte(modelsJSON), &p.ModelPreferences); err != nil {
		return nil, fmt.Errorf("decoding model_preferences: %w", err)
	}
	if defaultModel.Valid {
		p.DefaultModel = defaultModel.String
	}
	if temperature.Valid {
		v := temperature.Float64
		p.DefaultTemperature = &v
	}
	if maxTokens.Valid {
		v := int(maxTokens.Int64)
		p.DefaultMaxTokens = &v
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

// SavePreferences inserts or replaces a user's preferences.
func (s *SQLiteStore) SavePreferences(ctx context.Context, prefs *Preferences) error {
	if prefs.UpdatedAt.IsZero() {
		prefs.UpdatedAt = time.Now().UTC()
	}

	providers := prefs.PreferredProviders
	if providers == nil {
		providers = []string{}
	}
	providersJSON, err := json.Marshal(providers)
	if err != nil {
		return fmt.Errorf("encoding preferred_providers: %w", err)
	}
	models := prefs.ModelPreferences
	if models == nil {
		models = map[string]string{}
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("encoding model_preferences: %w", err)
	}

	var temperature, maxTokens any
	if prefs.DefaultTemperature != nil {
		temperature = *prefs.DefaultTemperature
	}
	if prefs.DefaultMaxTokens != nil {
		maxTokens = *prefs.DefaultMaxTokens
	}

	query := `
		INSERT INTO user_preferences (user_id, preferred_providers, model_preferences, default_model,
		                              default_temperature, default_max_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_providers = excluded.preferred_providers,
			model_preferences   = excluded.model_preferences,
			default_model       = excluded.default_model,
			default_temperature = excluded.default_temperature,
			default_max_tokens  = excluded.default_max_tokens,
			updated_at          = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		prefs.UserID,
		string(providersJSON),
		string(modelsJSON),
		nullString(prefs.DefaultModel),
		temperature,
		maxTokens,
		prefs.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}

	s.logger.Debug("saved preferences", "user_id", prefs.UserID, "providers", prefs.PreferredProviders)
	return nil
}

// Ensure SQLiteStore implements PreferenceStore interface.
var _ PreferenceStore = (*SQLiteStore)(nil)

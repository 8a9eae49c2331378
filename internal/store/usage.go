// ABOUTME: SQLite implementation for the perspective usage ledger
// ABOUTME: Stores one row per provider invocation and serves aggregate summaries

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveUsage stores a perspective usage record.
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *PerspectiveUsage) error {
	if usage.ID == "" {
		usage.ID = uuid.New().String()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO perspective_usage (id, request_id, user_id, model, tokens_used, latency_ms, succeeded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		usage.RequestID,
		usage.UserID,
		usage.Model,
		usage.TokensUsed,
		usage.LatencyMs,
		boolToInt(usage.Succeeded),
		usage.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved perspective usage",
		"id", usage.ID,
		"request_id", usage.RequestID,
		"user_id", usage.UserID,
		"model", usage.Model,
		"tokens_used", usage.TokensUsed,
	)
	return nil
}

// GetUsageSummary returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageSummary(ctx context.Context, filter UsageFilter) (*UsageSummary, error) {
	query := `
		SELECT
			COUNT(*) as invocations,
			COALESCE(SUM(CASE WHEN succeeded = 0 THEN 1 ELSE 0 END), 0) as failures,
			COALESCE(SUM(tokens_used), 0) as total_tokens
		FROM perspective_usage
		WHERE 1=1
	`
	args := []any{}

	if filter.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}

	var summary UsageSummary
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.Invocations,
		&summary.Failures,
		&summary.TotalTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage summary: %w", err)
	}

	return &summary, nil
}

// Ensure SQLiteStore implements UsageStore interface.
var _ UsageStore = (*SQLiteStore)(nil)

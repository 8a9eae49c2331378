// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject touch failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu           sync.RWMutex
	hashed       map[string]*HashedToken // keyed by token hash
	access       map[string]*AccessToken // keyed by token value
	preferences  map[string]*Preferences // keyed by user ID
	usage        []*PerspectiveUsage
	touchErr     error
	touchCount   int
	prefLookups  int
	preferenceFn func(userID string) (*Preferences, error)
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		hashed:      make(map[string]*HashedToken),
		access:      make(map[string]*AccessToken),
		preferences: make(map[string]*Preferences),
	}
}

// SetTouchError makes every Touch* call fail with err.
func (m *MockStore) SetTouchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchErr = err
}

// TouchCount returns how many Touch* calls were made.
func (m *MockStore) TouchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.touchCount
}

// PreferenceLookups returns how many times GetPreferences was called.
func (m *MockStore) PreferenceLookups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefLookups
}

// CreateHashedToken stores a copy of the token.
func (m *MockStore) CreateHashedToken(ctx context.Context, token *HashedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.hashed[token.TokenHash]; exists {
		return ErrDuplicateToken
	}
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	t := *token
	m.hashed[t.TokenHash] = &t
	return nil
}

// GetActiveHashedToken returns a copy of the active token with the given hash.
func (m *MockStore) GetActiveHashedToken(ctx context.Context, tokenHash string) (*HashedToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.hashed[tokenHash]
	if !ok || !t.Active {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// TouchHashedToken updates last_used_at.
func (m *MockStore) TouchHashedToken(ctx context.Context, tokenHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touchCount++
	if m.touchErr != nil {
		return m.touchErr
	}
	if t, ok := m.hashed[tokenHash]; ok {
		ts := at
		t.LastUsedAt = &ts
	}
	return nil
}

// DeactivateHashedToken marks a token inactive by ID.
func (m *MockStore) DeactivateHashedToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.hashed {
		if t.ID == id {
			t.Active = false
			return nil
		}
	}
	return ErrNotFound
}

// ListHashedTokens returns a user's tokens, newest first.
func (m *MockStore) ListHashedTokens(ctx context.Context, userID string) ([]*HashedToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*HashedToken
	for _, t := range m.hashed {
		if t.UserID == userID {
			c := *t
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// CreateAccessToken stores a copy of the token.
func (m *MockStore) CreateAccessToken(ctx context.Context, token *AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.access[token.Token]; exists {
		return ErrDuplicateToken
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	t := *token
	m.access[t.Token] = &t
	return nil
}

// GetUnrevokedAccessToken returns a copy of a non-revoked token.
func (m *MockStore) GetUnrevokedAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.access[token]
	if !ok || t.Revoked {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// TouchAccessToken updates last_used_at.
func (m *MockStore) TouchAccessToken(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touchCount++
	if m.touchErr != nil {
		return m.touchErr
	}
	if t, ok := m.access[token]; ok {
		ts := at
		t.LastUsedAt = &ts
	}
	return nil
}

// RevokeAccessToken marks a token revoked.
func (m *MockStore) RevokeAccessToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.access[token]
	if !ok {
		return ErrNotFound
	}
	t.Revoked = true
	return nil
}

// GetPreferences returns a copy of the user's preferences.
func (m *MockStore) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	m.mu.Lock()
	m.prefLookups++
	fn := m.preferenceFn
	m.mu.Unlock()

	if fn != nil {
		return fn(userID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.preferences[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	c.PreferredProviders = append([]string(nil), p.PreferredProviders...)
	c.ModelPreferences = make(map[string]string, len(p.ModelPreferences))
	for k, v := range p.ModelPreferences {
		c.ModelPreferences[k] = v
	}
	return &c, nil
}

// SetPreferenceFunc overrides GetPreferences, e.g. to simulate lookup failures.
func (m *MockStore) SetPreferenceFunc(fn func(userID string) (*Preferences, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferenceFn = fn
}

// SavePreferences stores a copy of the preferences.
func (m *MockStore) SavePreferences(ctx context.Context, prefs *Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prefs.UpdatedAt.IsZero() {
		prefs.UpdatedAt = time.Now().UTC()
	}
	p := *prefs
	m.preferences[p.UserID] = &p
	return nil
}

// SaveUsage appends a usage record.
func (m *MockStore) SaveUsage(ctx context.Context, usage *PerspectiveUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if usage.ID == "" {
		usage.ID = uuid.New().String()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	u := *usage
	m.usage = append(m.usage, &u)
	return nil
}

// Usage returns copies of all recorded usage rows in insertion order.
func (m *MockStore) Usage() []*PerspectiveUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*PerspectiveUsage, len(m.usage))
	for i, u := range m.usage {
		c := *u
		result[i] = &c
	}
	return result
}

// GetUsageSummary aggregates recorded usage.
func (m *MockStore) GetUsageSummary(ctx context.Context, filter UsageFilter) (*UsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var summary UsageSummary
	for _, u := range m.usage {
		if filter.UserID != nil && u.UserID != *filter.UserID {
			continue
		}
		if filter.Since != nil && u.CreatedAt.Before(*filter.Since) {
			continue
		}
		summary.Invocations++
		if !u.Succeeded {
			summary.Failures++
		}
		summary.TotalTokens += int64(u.TokensUsed)
	}
	return &summary, nil
}

// Close is a no-op.
func (m *MockStore) Ping(context.Context) error {
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

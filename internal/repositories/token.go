package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AccessTokenKey is the client_state key holding the bearer token.
const AccessTokenKey = "access_token"

// TokenRepository persists the access token in the client_state table.
type TokenRepository struct {
	db  *sql.DB
	key string
}

// NewTokenRepository creates a new TokenRepository with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db, key: AccessTokenKey}
}

// Load returns the persisted token, or "" when none is stored.
func (r *TokenRepository) Load(ctx context.Context) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM client_state WHERE key = ?", r.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return value, nil
}

// Save replaces the persisted token.
func (r *TokenRepository) Save(ctx context.Context, token string) error {
	query := `
		INSERT INTO client_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, r.key, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Clearing an absent token is not an error.
func (r *TokenRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM client_state WHERE key = ?", r.key); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// UpdatedAt returns when the token was last saved.
func (r *TokenRepository) UpdatedAt(ctx context.Context) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, "SELECT updated_at FROM client_state WHERE key = ?", r.key).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("token not found")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to scan token timestamp: %w", err)
	}
	return updatedAt, nil
}

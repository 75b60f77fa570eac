package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	findSessionSQL = `SELECT user_id, capabilities FROM sessions
		WHERE token_hash = $1 AND active AND expires_at > now()`

	upsertSessionSQL = `INSERT INTO sessions (token_hash, user_id, capabilities, active, expires_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (token_hash) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			capabilities = EXCLUDED.capabilities,
			active = TRUE,
			expires_at = EXCLUDED.expires_at`
)

var _ auth.Repository = (*SessionRepository)(nil)

// SessionRepository resolves bearer token hashes to principals.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a SessionRepository that uses the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// FindSession looks up an active, unexpired session by its HMAC-SHA256 hash.
// Returns auth.ErrSessionNotFound when no session matches.
func (r *SessionRepository) FindSession(ctx context.Context, tokenHash string) (*auth.Principal, error) {
	var p auth.Principal
	err := r.pool.QueryRow(ctx, findSessionSQL, tokenHash).Scan(&p.UserID, &p.Capabilities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return &p, nil
}

// Upsert stores a session for tokenHash.
func (r *SessionRepository) Upsert(ctx context.Context, tokenHash string, p auth.Principal, expiresAt time.Time) error {
	capabilities := p.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertSessionSQL, tokenHash, p.UserID, capabilities, expiresAt); err != nil {
		return fmt.Errorf("upserting session for user %q: %w", p.UserID, err)
	}
	return nil
}

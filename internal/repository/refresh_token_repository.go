package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/pkg/database"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked, revoked_at, created_at`

const insertRefreshToken = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, revoked_at, created_at) VALUES (:id, :user_id, :token_hash, :expires_at, :revoked, :revoked_at, :created_at)`

// RefreshTokenRepository stores refresh token fingerprints.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create persists a refresh token entry.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	prepareRefreshToken(token)
	if _, err := r.db.NamedExecContext(ctx, insertRefreshToken, token); err != nil {
		return insertRefreshTokenError(err)
	}
	return nil
}

// FindActiveByHash returns the non-revoked token with the given fingerprint.
// Expiry is not checked here.
func (r *RefreshTokenRepository) FindActiveByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 AND revoked = FALSE LIMIT 1`
	return r.findOne(ctx, "find active refresh token", query, hash)
}

// FindByHash returns the token with the given fingerprint regardless of state.
func (r *RefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 LIMIT 1`
	return r.findOne(ctx, "find refresh token", query, hash)
}

func (r *RefreshTokenRepository) findOne(ctx context.Context, op, query, hash string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rt, nil
}

// Rotate atomically replaces the live token matching hash.
//
// Inside one transaction the current row is locked, next decides on the
// replacement (returning an error aborts the rotation), the current row is
// revoked only if still live, and the replacement is inserted. sql.ErrNoRows
// is returned when no live row matches or a concurrent rotation revoked it
// first, so at most one caller ever succeeds per token.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, hash string, revokedAt time.Time, next func(current *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error) {
	const selectQuery = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 AND revoked = FALSE LIMIT 1 FOR UPDATE`
	const revokeQuery = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`

	var replacement *models.RefreshToken
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var current models.RefreshToken
		if err := tx.GetContext(ctx, &current, selectQuery, hash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock refresh token: %w", err)
		}

		candidate, err := next(&current)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, revokeQuery, current.ID, revokedAt)
		if err != nil {
			return fmt.Errorf("revoke rotated refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("revoke rotated refresh token rows affected: %w", err)
		}
		if n != 1 {
			return sql.ErrNoRows
		}

		prepareRefreshToken(candidate)
		if _, err := tx.NamedExecContext(ctx, insertRefreshToken, candidate); err != nil {
			return insertRefreshTokenError(err)
		}
		replacement = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// RevokeByHash revokes the live token with the given fingerprint. It reports
// whether a row changed; revoking an unknown or revoked token is a no-op.
func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, hash string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE token_hash = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, hash, revokedAt)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token rows affected: %w", err)
	}
	return n > 0, nil
}

// RevokeAllForUser revokes every live refresh token owned by userID.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpiredBefore removes tokens that expired before cutoff, revoked or not.
func (r *RefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens rows affected: %w", err)
	}
	return n, nil
}

func prepareRefreshToken(token *models.RefreshToken) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
}

func insertRefreshTokenError(err error) error {
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintRefreshTokenKey {
		return ErrDuplicateTokenHash
	}
	return fmt.Errorf("create refresh token: %w", err)
}

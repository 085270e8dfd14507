package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateEmail is returned when an insert trips the email uniqueness constraint.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateUsername is returned when an insert trips the username uniqueness constraint.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateTokenHash is returned when two refresh tokens share a fingerprint.
	ErrDuplicateTokenHash = errors.New("refresh token fingerprint already exists")
)

const (
	uniqueViolationCode = "23505"

	constraintUsersEmail      = "users_email_key"
	constraintUsersUsername   = "users_username_key"
	constraintRefreshTokenKey = "refresh_tokens_token_hash_key"
)

// uniqueViolation returns the violated constraint name when err is a
// PostgreSQL unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolationCode {
		return "", false
	}
	return pqErr.Constraint, true
}

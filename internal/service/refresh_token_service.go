package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/repository"
	"github.com/noah-isme/auth-api/pkg/tokenhash"
)

var (
	// ErrRefreshTokenNotFound is returned when no live token matches the secret.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenExpired is returned when the matching token is past its expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// issueAttempts bounds retries on a fingerprint collision.
const issueAttempts = 3

type refreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindActiveByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, hash string, revokedAt time.Time, next func(current *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error)
	RevokeByHash(ctx context.Context, hash string, revokedAt time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefreshTokenConfig configures refresh token lifetime and retention.
type RefreshTokenConfig struct {
	TTL       time.Duration
	Retention time.Duration
}

// IssuedRefreshToken carries a freshly minted secret. Value is the only copy
// of the raw secret and is handed straight to the client.
type IssuedRefreshToken struct {
	Value     string
	UserID    string
	ExpiresAt time.Time
}

// RefreshTokenService manages the refresh token lifecycle: issue, validate,
// single-use rotation and revocation.
type RefreshTokenService struct {
	repo    refreshTokenRepository
	audit   AuditRecorder
	metrics *MetricsService
	logger  *zap.Logger
	config  RefreshTokenConfig
	now     func() time.Time
}

// NewRefreshTokenService constructs a RefreshTokenService.
func NewRefreshTokenService(repo refreshTokenRepository, audit AuditRecorder, metrics *MetricsService, logger *zap.Logger, cfg RefreshTokenConfig) *RefreshTokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAuditRecorder{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	return &RefreshTokenService{repo: repo, audit: audit, metrics: metrics, logger: logger, config: cfg, now: time.Now}
}

// Issue mints and stores a new refresh token for userID.
func (s *RefreshTokenService) Issue(ctx context.Context, userID string) (*IssuedRefreshToken, error) {
	for attempt := 1; ; attempt++ {
		value, record, err := s.mint(userID, s.now().UTC())
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, record)
		if err == nil {
			return &IssuedRefreshToken{Value: value, UserID: userID, ExpiresAt: record.ExpiresAt}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateTokenHash) || attempt == issueAttempts {
			return nil, fmt.Errorf("issue refresh token: %w", err)
		}
	}
}

// Validate returns the live record for raw without changing any state.
func (s *RefreshTokenService) Validate(ctx context.Context, raw string) (*models.RefreshToken, error) {
	if raw == "" {
		return nil, ErrRefreshTokenNotFound
	}
	record, err := s.repo.FindActiveByHash(ctx, tokenhash.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("validate refresh token: %w", err)
	}
	if record.ExpiredAt(s.now().UTC()) {
		return nil, ErrRefreshTokenExpired
	}
	return record, nil
}

// Rotate consumes raw and returns its replacement for the same user. Of any
// number of concurrent calls with the same secret at most one succeeds; the
// rest get ErrRefreshTokenNotFound. An expired token is left untouched.
func (s *RefreshTokenService) Rotate(ctx context.Context, raw string) (*IssuedRefreshToken, error) {
	if raw == "" {
		s.metrics.RecordRefreshRotation(ResultInvalid)
		return nil, ErrRefreshTokenNotFound
	}

	now := s.now().UTC()
	hash := tokenhash.Fingerprint(raw)
	var value string
	replacement, err := s.repo.Rotate(ctx, hash, now, func(current *models.RefreshToken) (*models.RefreshToken, error) {
		if current.ExpiredAt(now) {
			return nil, ErrRefreshTokenExpired
		}
		v, record, err := s.mint(current.UserID, now)
		if err != nil {
			return nil, err
		}
		value = v
		return record, nil
	})
	switch {
	case err == nil:
		s.metrics.RecordRefreshRotation(ResultSuccess)
		return &IssuedRefreshToken{Value: value, UserID: replacement.UserID, ExpiresAt: replacement.ExpiresAt}, nil
	case errors.Is(err, ErrRefreshTokenExpired):
		s.metrics.RecordRefreshRotation(ResultExpired)
		return nil, ErrRefreshTokenExpired
	case errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordRefreshRotation(ResultInvalid)
		s.detectReuse(ctx, hash)
		return nil, ErrRefreshTokenNotFound
	default:
		s.metrics.RecordRefreshRotation(ResultFailure)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
}

// Revoke marks the live token for raw as revoked. It reports whether a token
// changed state; unknown or already revoked secrets are a no-op.
func (s *RefreshTokenService) Revoke(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	changed, err := s.repo.RevokeByHash(ctx, tokenhash.Fingerprint(raw), s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return changed, nil
}

// RevokeAllForUser revokes every live token owned by userID.
func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user: %w", err)
	}
	return n, nil
}

// Purge deletes tokens that expired more than the retention period ago.
func (s *RefreshTokenService) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.config.Retention)
	n, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	s.metrics.RecordTokensPurged(n)
	return n, nil
}

func (s *RefreshTokenService) mint(userID string, now time.Time) (string, *models.RefreshToken, error) {
	value, err := tokenhash.Generate(tokenhash.RefreshTokenSize)
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return value, &models.RefreshToken{
		UserID:    userID,
		TokenHash: tokenhash.Fingerprint(value),
		ExpiresAt: now.Add(s.config.TTL),
	}, nil
}

// detectReuse flags presentation of a secret that was already rotated or
// revoked.
func (s *RefreshTokenService) detectReuse(ctx context.Context, hash string) {
	record, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("refresh token reuse lookup failed", zap.Error(err))
		}
		return
	}
	if !record.Revoked {
		return
	}

	s.metrics.RecordRefreshReuse()
	s.logger.Warn("refresh token reuse detected",
		zap.String("user_id", record.UserID),
		zap.String("token_id", record.ID),
	)
	s.audit.Record(ctx, AuditEntry{
		UserID:   record.UserID,
		Action:   models.AuditActionRefreshReuse,
		Meta:     RequestMetaFrom(ctx),
		Metadata: map[string]interface{}{"token_id": record.ID},
	})
}

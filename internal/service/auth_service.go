package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/repository"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
)

const profileCacheKeyPrefix = "auth:profile:"

// bcrypt only looks at the first 72 bytes; validator's max counts runes.
const maxPasswordBytes = 72

const invalidRefreshMessage = "invalid refresh token"

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) (bool, error)
}

type refreshTokenManager interface {
	Issue(ctx context.Context, userID string) (*IssuedRefreshToken, error)
	Rotate(ctx context.Context, raw string) (*IssuedRefreshToken, error)
	Revoke(ctx context.Context, raw string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type accessTokenSigner interface {
	Sign(claims models.AccessClaims, ttl time.Duration) (string, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	BcryptCost      int
	ProfileCacheTTL time.Duration
}

// AuthService orchestrates signup, signin, refresh and logout.
type AuthService struct {
	users     authUserRepository
	refresh   refreshTokenManager
	access    accessTokenSigner
	cache     *CacheService
	audit     AuditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users authUserRepository,
	refresh refreshTokenManager,
	access accessTokenSigner,
	cache *CacheService,
	audit AuditRecorder,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if audit == nil {
		audit = nopAuditRecorder{}
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:     users,
		refresh:   refresh,
		access:    access,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Signup registers an account and signs it in.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}
	if req.Password != req.PasswordConfirmation {
		return nil, appErrors.Clone(appErrors.ErrValidation, "passwords do not match")
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at most 72 bytes")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if _, err := s.users.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check username")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at most 72 bytes")
		}
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		Name:         req.Name,
		LastName:     req.LastName,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, user.ID, models.AuditActionSignup, nil)
	return result, nil
}

// Signin verifies credentials. Unknown email and wrong password fail with
// the same error.
func (s *AuthService) Signin(ctx context.Context, req models.SigninRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signin payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to fetch user")
		}
		// keep timing close to the wrong-password path
		_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(req.Password))
		return nil, s.signinFailed(ctx, "", "unknown_email")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.signinFailed(ctx, user.ID, "wrong_password")
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	result.User = &profile

	s.metrics.RecordSignin(ResultSuccess)
	s.record(ctx, user.ID, models.AuditActionSignin, nil)
	return result, nil
}

// RefreshAccessToken rotates raw and returns a new access token together with
// the replacement refresh token.
func (s *AuthService) RefreshAccessToken(ctx context.Context, raw string) (*models.AuthResult, error) {
	if raw == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token required")
	}

	issued, err := s.refresh.Rotate(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenExpired) || errors.Is(err, ErrRefreshTokenNotFound) {
			s.logger.Debug("refresh rejected", zap.Error(err))
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, invalidRefreshMessage)
		}
		return nil, appErrors.Internal(err, "failed to rotate refresh token")
	}

	user, err := s.users.FindByID(ctx, issued.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to fetch user")
		}
		if _, revokeErr := s.refresh.Revoke(ctx, issued.Value); revokeErr != nil {
			s.logger.Warn("failed to revoke orphaned refresh token", zap.Error(revokeErr))
		}
		s.logger.Debug("refresh rejected", zap.String("user_id", issued.UserID), zap.String("reason", "user_missing"))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, invalidRefreshMessage)
	}

	token, err := s.access.Sign(accessClaimsFor(user), 0)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	profile := user.Profile()

	s.record(ctx, user.ID, models.AuditActionRefresh, nil)
	return &models.AuthResult{Token: token, User: &profile, RefreshToken: issued.Value}, nil
}

// Logout revokes every session of an authenticated user, or the presented
// refresh token otherwise. It always succeeds; store failures are logged.
func (s *AuthService) Logout(ctx context.Context, userID, raw string) error {
	if userID != "" {
		n, err := s.refresh.RevokeAllForUser(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to revoke user refresh tokens", zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		s.record(ctx, userID, models.AuditActionLogoutAll, map[string]interface{}{"revoked": n})
		return nil
	}

	if raw == "" {
		return nil
	}
	changed, err := s.refresh.Revoke(ctx, raw)
	if err != nil {
		s.logger.Warn("failed to revoke refresh token", zap.Error(err))
		return nil
	}
	if changed {
		s.record(ctx, "", models.AuditActionLogout, nil)
	}
	return nil
}

// Profile returns the public profile of userID.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	key := profileCacheKeyPrefix + userID
	var cached models.UserProfile
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	profile := user.Profile()
	_ = s.cache.Set(ctx, key, profile, s.config.ProfileCacheTTL)
	return &profile, nil
}

// DeleteAccount removes the user. Refresh tokens go with it.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	deleted, err := s.users.Delete(ctx, userID)
	if err != nil {
		return appErrors.Internal(err, "failed to delete user")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrUnauthorized, "user not found")
	}

	_ = s.cache.Invalidate(ctx, profileCacheKeyPrefix+userID)
	// the row is gone, so the id travels in metadata instead of the FK column
	s.record(ctx, "", models.AuditActionAccountDelete, map[string]interface{}{"user_id": userID})
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthResult, error) {
	token, err := s.access.Sign(accessClaimsFor(user), 0)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	issued, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}
	return &models.AuthResult{Token: token, RefreshToken: issued.Value}, nil
}

func (s *AuthService) signinFailed(ctx context.Context, userID, reason string) error {
	s.metrics.RecordSignin(ResultFailure)
	s.record(ctx, userID, models.AuditActionSigninFailed, map[string]interface{}{"reason": reason})
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

func (s *AuthService) record(ctx context.Context, userID, action string, metadata map[string]interface{}) {
	s.audit.Record(ctx, AuditEntry{
		UserID:   userID,
		Action:   action,
		Meta:     RequestMetaFrom(ctx),
		Metadata: metadata,
	})
}

func (s *AuthService) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("dummy-password"), s.config.BcryptCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func accessClaimsFor(user *models.User) models.AccessClaims {
	return models.AccessClaims{ID: user.ID, Email: user.Email, Username: user.Username}
}

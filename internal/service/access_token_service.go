package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/auth-api/internal/models"
)

var (
	// ErrAccessTokenInvalid covers malformed, tampered or wrongly signed tokens.
	ErrAccessTokenInvalid = errors.New("access token invalid")
	// ErrAccessTokenExpired is returned for a well-formed token past its exp.
	ErrAccessTokenExpired = errors.New("access token expired")
)

// AccessTokenConfig configures access token signing.
type AccessTokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// AccessTokenService signs and verifies short-lived HS256 access tokens.
type AccessTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAccessTokenService constructs the issuer. The secret is copied once and
// never logged.
func NewAccessTokenService(cfg AccessTokenConfig) *AccessTokenService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AccessTokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a signed token embedding the identity. A non-positive ttl uses
// the configured default.
func (s *AccessTokenService) Sign(claims models.AccessClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC()
	payload := models.JWTClaims{
		UserID:   claims.ID,
		Email:    claims.Email,
		Username: claims.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and time claims and returns the payload.
func (s *AccessTokenService) Verify(token string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrAccessTokenInvalid
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrAccessTokenInvalid
	}
	return claims, nil
}

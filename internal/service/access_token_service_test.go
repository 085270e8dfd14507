package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/auth-api/internal/models"
)

func newTestAccessTokens() *AccessTokenService {
	return NewAccessTokenService(AccessTokenConfig{Secret: "test-secret", Issuer: "auth-api", TTL: 15 * time.Minute})
}

func TestAccessTokenSignAndVerify(t *testing.T) {
	svc := newTestAccessTokens()

	token, err := svc.Sign(models.AccessClaims{ID: "u1", Email: "user@example.com", Username: "jdoe"}, 0)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "jdoe", claims.Username)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestAccessTokenExpired(t *testing.T) {
	svc := newTestAccessTokens()
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := svc.Sign(models.AccessClaims{ID: "u1"}, time.Minute)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrAccessTokenExpired)
}

func TestAccessTokenRejectsTampering(t *testing.T) {
	svc := newTestAccessTokens()
	token, err := svc.Sign(models.AccessClaims{ID: "u1"}, 0)
	require.NoError(t, err)

	other := NewAccessTokenService(AccessTokenConfig{Secret: "another-secret", Issuer: "auth-api"})
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrAccessTokenInvalid)

	_, err = svc.Verify(token + "x")
	assert.ErrorIs(t, err, ErrAccessTokenInvalid)

	_, err = svc.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrAccessTokenInvalid)
}

func TestAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestAccessTokens()
	claims := models.JWTClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrAccessTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(unsigned)
	assert.ErrorIs(t, err, ErrAccessTokenInvalid)
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/service"
	"github.com/noah-isme/auth-api/pkg/response"
)

func newVerifier() *service.AccessTokenService {
	return service.NewAccessTokenService(service.AccessTokenConfig{Secret: "test-secret", Issuer: "auth-api", TTL: time.Minute})
}

func protectedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", mw, func(c *gin.Context) {
		value, ok := c.Get(ContextUserKey)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"id": ""})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": value.(*models.JWTClaims).UserID})
	})
	return router
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "UNAUTHORIZED", envelope.Error.Code)
	return envelope.Error.Message
}

func TestJWTAcceptsValidToken(t *testing.T) {
	verifier := newVerifier()
	token, err := verifier.Sign(models.AccessClaims{ID: "u1"}, 0)
	require.NoError(t, err)

	rec := serve(protectedRouter(JWT(verifier)), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u1"}`, rec.Body.String())
}

func TestJWTRejectsMissingAndMalformedHeader(t *testing.T) {
	router := protectedRouter(JWT(newVerifier()))

	for _, header := range []string{"", "Token abc", "Bearer "} {
		rec := serve(router, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "missing or malformed authorization header", errorMessage(t, rec))
	}
}

func TestJWTDistinguishesExpiredFromInvalid(t *testing.T) {
	verifier := newVerifier()
	router := protectedRouter(JWT(verifier))

	rec := serve(router, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid access token", errorMessage(t, rec))

	past := time.Now().Add(-time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-api",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	rec = serve(router, "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "access token expired", errorMessage(t, rec))
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	verifier := newVerifier()
	router := protectedRouter(OptionalJWT(verifier))

	rec := serve(router, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":""}`, rec.Body.String())

	rec = serve(router, "Bearer garbage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":""}`, rec.Body.String())

	token, err := verifier.Sign(models.AccessClaims{ID: "u1"}, 0)
	require.NoError(t, err)
	rec = serve(router, "Bearer "+token)
	assert.JSONEq(t, `{"id":"u1"}`, rec.Body.String())
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/auth-api/internal/middleware"
	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/service"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
)

type authServiceMock struct {
	signupReq  models.SignupRequest
	signupErr  error
	signinErr  error
	refreshRaw string
	refreshErr error
	logoutUser string
	logoutRaw  string
	profileErr error
	deletedID  string
	meta       models.RequestMeta
}

func (m *authServiceMock) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResult, error) {
	m.signupReq = req
	m.meta = service.RequestMetaFrom(ctx)
	if m.signupErr != nil {
		return nil, m.signupErr
	}
	return &models.AuthResult{Token: "access", RefreshToken: "refresh-1"}, nil
}

func (m *authServiceMock) Signin(ctx context.Context, req models.SigninRequest) (*models.AuthResult, error) {
	if m.signinErr != nil {
		return nil, m.signinErr
	}
	return &models.AuthResult{Token: "access", RefreshToken: "refresh-2", User: &models.UserProfile{ID: "u1", Username: "jdoe"}}, nil
}

func (m *authServiceMock) RefreshAccessToken(ctx context.Context, raw string) (*models.AuthResult, error) {
	m.refreshRaw = raw
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &models.AuthResult{Token: "access", RefreshToken: "refresh-3", User: &models.UserProfile{ID: "u1"}}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, userID, raw string) error {
	m.logoutUser = userID
	m.logoutRaw = raw
	return nil
}

func (m *authServiceMock) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	return &models.UserProfile{ID: userID, Username: "jdoe"}, nil
}

func (m *authServiceMock) DeleteAccount(ctx context.Context, userID string) error {
	m.deletedID = userID
	return nil
}

type stubVerifier struct{}

func (stubVerifier) Verify(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, service.ErrAccessTokenInvalid
	}
	return &models.JWTClaims{UserID: "u1"}, nil
}

func newAuthRouter(svc *authServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewAuthHandler(svc, CookieConfig{Name: "refreshToken", MaxAge: 30 * 86400, Secure: true})
	RegisterAuthRoutes(router, "/api/v1", handler, stubVerifier{})
	return router
}

func doRequest(router *gin.Engine, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refreshToken" {
			return cookie
		}
	}
	t.Fatalf("refresh cookie not set")
	return nil
}

func TestSignupSetsRefreshCookie(t *testing.T) {
	svc := &authServiceMock{}
	router := newAuthRouter(svc)

	body := `{"username":"jdoe","email":"e@x.com","name":"John","lastName":"Doe","password":"pw","passwordConfirmation":"pw"}`
	rec := doRequest(router, http.MethodPost, "/api/v1/signup", body, func(r *http.Request) {
		r.Header.Set("User-Agent", "handler-test")
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"data":{"token":"access"}}`, rec.Body.String())
	assert.Equal(t, "Doe", svc.signupReq.LastName)
	assert.Equal(t, "handler-test", svc.meta.UserAgent)

	cookie := refreshCookie(t, rec)
	assert.Equal(t, "refresh-1", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 30*86400, cookie.MaxAge)
}

func TestSignupRejectsMalformedJSON(t *testing.T) {
	router := newAuthRouter(&authServiceMock{})

	rec := doRequest(router, http.MethodPost, "/api/v1/signup", `{"username":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestSignupConflict(t *testing.T) {
	svc := &authServiceMock{signupErr: appErrors.Clone(appErrors.ErrConflict, "email already exists")}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/signup", `{}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"CONFLICT","message":"email already exists","status":409}}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())
}

func TestSigninReturnsUser(t *testing.T) {
	router := newAuthRouter(&authServiceMock{})

	rec := doRequest(router, http.MethodPost, "/api/v1/signin", `{"email":"e@x.com","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data models.AuthResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "access", envelope.Data.Token)
	require.NotNil(t, envelope.Data.User)
	assert.Equal(t, "jdoe", envelope.Data.User.Username)
	assert.NotContains(t, rec.Body.String(), "refresh-2")
	assert.Equal(t, "refresh-2", refreshCookie(t, rec).Value)
}

func TestSigninInternalErrorIsGeneric(t *testing.T) {
	svc := &authServiceMock{signinErr: errors.New("connection refused")}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/signin", `{"email":"e@x.com","password":"pw"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestRefreshPrefersCookie(t *testing.T) {
	svc := &authServiceMock{}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/refresh", `{"refreshToken":"from-body"}`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "from-cookie"})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-cookie", svc.refreshRaw)
	assert.Equal(t, "refresh-3", refreshCookie(t, rec).Value)
}

func TestRefreshFallsBackToBody(t *testing.T) {
	svc := &authServiceMock{}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/refresh", `{"refreshToken":"from-body"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-body", svc.refreshRaw)
}

func TestRefreshFailureClearsCookie(t *testing.T) {
	svc := &authServiceMock{refreshErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "", svc.refreshRaw)
	assert.True(t, refreshCookie(t, rec).MaxAge < 0)
}

func TestLogoutWithBearer(t *testing.T) {
	svc := &authServiceMock{}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/logout", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer good")
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "raw"})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"message":"logged out"}}`, rec.Body.String())
	assert.Equal(t, "u1", svc.logoutUser)
	assert.Equal(t, "raw", svc.logoutRaw)
	assert.True(t, refreshCookie(t, rec).MaxAge < 0)
}

func TestLogoutWithInvalidBearerFallsBackToToken(t *testing.T) {
	svc := &authServiceMock{}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/logout", `{"refreshToken":"raw"}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer expired")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.logoutUser)
	assert.Equal(t, "raw", svc.logoutRaw)
}

func TestProfileRequiresBearer(t *testing.T) {
	router := newAuthRouter(&authServiceMock{})

	rec := doRequest(router, http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/profile", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer good")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"username":"jdoe"`))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDeleteProfile(t *testing.T) {
	svc := &authServiceMock{}
	router := newAuthRouter(svc)

	rec := doRequest(router, http.MethodDelete, "/api/v1/profile", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer good")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", svc.deletedID)
	assert.True(t, refreshCookie(t, rec).MaxAge < 0)
}

func TestAuthenticatedUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := authenticatedUserID(c)
	assert.False(t, ok)

	c.Set(middleware.ContextUserKey, &models.JWTClaims{})
	_, ok = authenticatedUserID(c)
	assert.False(t, ok)

	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})
	userID, ok := authenticatedUserID(c)
	assert.True(t, ok)
	assert.Equal(t, "u1", userID)
}

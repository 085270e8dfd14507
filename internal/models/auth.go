package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SignupRequest registers a new account.
type SignupRequest struct {
	Username             string `json:"username" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Name                 string `json:"name" validate:"required,max=255"`
	LastName             string `json:"lastName" validate:"required,max=255"`
	Password             string `json:"password" validate:"required,max=72"`
	PasswordConfirmation string `json:"passwordConfirmation" validate:"required"`
}

// SigninRequest holds credentials for authenticating a user.
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the body fallback for clients that cannot send the
// refresh cookie.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RequestMeta carries client details recorded in the audit log.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthResult is returned by signup, signin and refresh. RefreshToken is
// delivered out of band as a cookie and never serialized.
type AuthResult struct {
	Token        string       `json:"token"`
	User         *UserProfile `json:"user,omitempty"`
	RefreshToken string       `json:"-"`
}

// AccessClaims is the identity embedded in an access token.
type AccessClaims struct {
	ID       string
	Email    string
	Username string
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

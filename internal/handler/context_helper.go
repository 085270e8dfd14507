package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/auth-api/internal/middleware"
	"github.com/noah-isme/auth-api/internal/models"
)

// authenticatedUserID returns the subject of the access token verified by
// middleware.JWT or middleware.OptionalJWT. ok is false for anonymous
// requests.
func authenticatedUserID(c *gin.Context) (userID string, ok bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return "", false
	}
	claims, isClaims := value.(*models.JWTClaims)
	if !isClaims || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

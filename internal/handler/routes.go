package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/auth-api/internal/middleware"
)

// RegisterAuthRoutes mounts the authentication endpoints under prefix.
func RegisterAuthRoutes(r gin.IRouter, prefix string, auth *AuthHandler, verifier middleware.TokenVerifier) {
	api := r.Group(prefix)
	api.POST("/signup", auth.Signup)
	api.POST("/signin", auth.Signin)
	api.POST("/refresh", auth.Refresh)
	api.POST("/logout", middleware.OptionalJWT(verifier), auth.Logout)

	profile := api.Group("/profile", middleware.JWT(verifier))
	profile.GET("", auth.Profile)
	profile.DELETE("", auth.DeleteProfile)
}

// RegisterOpsRoutes mounts health, readiness and metrics endpoints.
func RegisterOpsRoutes(r gin.IRouter, ops *MetricsHandler) {
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
}

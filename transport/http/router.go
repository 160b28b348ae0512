package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/tessera/observability"
	"github.com/layer-3/tessera/ports"
	"github.com/layer-3/tessera/service"
)

// SetupRouter sets up the Gin router. A zero timeout disables the per-request deadline.
func SetupRouter(authService *service.AuthService, logger *zap.Logger, timeout time.Duration, pingers ...ports.Pinger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), observability.RequestLogger(logger))
	if timeout > 0 {
		router.Use(RequestTimeout(timeout))
	}

	handlers := NewAuthHandlers(authService, logger)
	health := NewHealthHandler(logger, pingers...)

	router.GET("/health", health.Health)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/tokens", handlers.Issue)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
		auth.POST("/email-verification", handlers.RequestEmailVerification)
		auth.GET("/email-verification/:token", handlers.VerifyEmail)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/me", handlers.Me)
	}

	return router
}

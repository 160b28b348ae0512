package http

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/tessera/service"
)

// SubjectKey is the gin context key holding the authenticated subject id
const SubjectKey = "subjectID"

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID, err := authService.ValidateAccessToken(c.Request.Context(), bearerToken(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.Set(SubjectKey, subjectID)

		c.Next()
	}
}

// RequestTimeout attaches a deadline to every request context
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header, or "" when absent
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

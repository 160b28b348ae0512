package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
	"github.com/layer-3/tessera/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

type pairResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func newPairResponse(pair core.Pair) pairResponse {
	return pairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(core.AccessPolicy.TTL.Seconds()),
		RefreshExpiresIn: int64(core.RefreshPolicy.TTL.Seconds()),
	}
}

// Issue hands out a new token pair for a subject.
// Callers are trusted services that already authenticated the subject.
func (h *AuthHandlers) Issue(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.Issue(c.Request.Context(), req.SubjectID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPairResponse(pair))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPairResponse(pair))
}

// Logout revokes the bearer access token and the refresh token in the body, if any
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.authService.Logout(c.Request.Context(), bearerToken(c), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RequestEmailVerification sends a verification link to the given address
func (h *AuthHandlers) RequestEmailVerification(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id" binding:"required"`
		Email     string `json:"email" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// the token itself only travels through the mailer
	if _, err := h.authService.RequestEmailVerification(c.Request.Context(), req.SubjectID, req.Email); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"expires_in": int64(core.EmailVerificationPolicy.TTL.Seconds()),
	})
}

// VerifyEmail confirms the address behind a verification token
func (h *AuthHandlers) VerifyEmail(c *gin.Context) {
	subjectID, err := h.authService.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_id": subjectID,
		"verified":   true,
	})
}

// Me returns the subject of the presented access token
func (h *AuthHandlers) Me(c *gin.Context) {
	subjectID, exists := c.Get(SubjectKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Subject not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_id": subjectID,
	})
}

func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	writeError(c, h.logger, err)
}

// writeError maps service errors to responses. Every token rejection
// looks the same to the client; the actual kind only goes to the log.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	_ = c.Error(err)

	switch {
	case core.IsRejection(err):
		logger.Info("token rejected", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case errors.Is(err, core.ErrInvalidSubject), errors.Is(err, service.ErrInvalidEmail):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// HealthHandler reports whether the revocation stores are reachable
type HealthHandler struct {
	pingers []ports.Pinger
	logger  *zap.Logger
}

// NewHealthHandler creates a health handler over pingers
func NewHealthHandler(logger *zap.Logger, pingers ...ports.Pinger) *HealthHandler {
	return &HealthHandler{pingers: pingers, logger: logger}
}

// Health pings every store
func (h *HealthHandler) Health(c *gin.Context) {
	for _, p := range h.pingers {
		if err := p.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"libertax/internal/config"
	"libertax/internal/service"
)

// ConfirmationEmailHint reemplaza los errores de envio del email de confirmacion.
const ConfirmationEmailHint = "Configura el servidor: desactiva la confirmación de email (AUTH_REQUIRE_EMAIL_CONFIRMATION=false) para entrar directo."

// AuthHandler atiende el panel de acceso.
type AuthHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
	users    *service.UserService
}

func NewAuthHandler(logger *zap.Logger, sessions *service.SessionService, users *service.UserService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		sessions: sessions,
		users:    users,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUp maneja POST /auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sessions.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(c, "signup", err)
		return
	}
	if res.NeedsConfirmation {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// SignIn maneja POST /auth/signin.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signin request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(c, "signin", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Confirm maneja POST /auth/confirm.
func (h *AuthHandler) Confirm(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid confirm request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sessions.Confirm(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.writeAuthError(c, "confirm", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Resend maneja POST /auth/resend.
func (h *AuthHandler) Resend(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.sessions.ConfigError(); err != nil {
		h.writeAuthError(c, "resend", err)
		return
	}

	if err := h.users.ResendConfirmation(c.Request.Context(), req.Email); err != nil {
		h.writeAuthError(c, "resend", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "code_sent"})
}

// Refresh maneja POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeAuthError(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// SignOut maneja POST /auth/signout. El refresh token en el cuerpo es opcional.
func (h *AuthHandler) SignOut(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid signout request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	_ = h.sessions.SignOut(c.Request.Context(), claims, req.RefreshToken)
	c.Status(http.StatusNoContent)
}

// writeAuthError traduce los errores de acceso. El mensaje se muestra tal cual,
// salvo las fallas del email de confirmacion que se reemplazan por la pista del servidor.
func (h *AuthHandler) writeAuthError(c *gin.Context, op string, err error) {
	var cfgErr *config.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": cfgErr.Error(), "missing": cfgErr.Missing, "hint": cfgErr.Hint()})
	case strings.Contains(err.Error(), "confirmation email"):
		h.logger.Warn(op+" confirmation email failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": ConfirmationEmailHint})
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrCodeInvalid),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeNotRequested):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrJWTInvalid),
		errors.Is(err, service.ErrJWTExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailNotConfirmed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete " + op})
	}
}

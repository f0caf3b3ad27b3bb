package http

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"libertax/internal/service"
)

const sseHeartbeat = 15 * time.Second

// SessionHandler expone la puerta de sesion y el stream de cambios.
type SessionHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
}

func NewSessionHandler(logger *zap.Logger, sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions}
}

// GetSession maneja GET /session. El token es opcional: sin token (o invalido)
// la vista es unauthenticated.
func (h *SessionHandler) GetSession(c *gin.Context) {
	view := h.sessions.Gate(c.Request.Context(), bearerToken(c))
	c.JSON(http.StatusOK, view)
}

// Events maneja GET /session/events como Server-Sent Events.
func (h *SessionHandler) Events(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	events, unsubscribe := h.sessions.Hub().Subscribe(claims.UserID)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case evt, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(string(evt.Type), evt)
			return true
		}
	})
	h.logger.Debug("session stream closed", zap.String("user_id", claims.UserID))
}

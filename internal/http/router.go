package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"libertax/internal/config"
	"libertax/internal/service"
)

// RouterOptions reune lo que el router necesita ademas de los handlers.
type RouterOptions struct {
	AllowOrigins []string
	JWT          *service.JWTService
	// ConfigErr bloquea las rutas que dependen del proveedor generativo.
	ConfigErr error
	// HealthCheck verifica dependencias (base de datos) para /healthz.
	HealthCheck func(ctx context.Context) error
	Metrics     http.Handler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	opts RouterOptions,
	authH *AuthHandler,
	sessionH *SessionHandler,
	responseH *ResponseHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: CORS, logging, recovery y JSON content-type.
	r.Use(corsMiddleware(opts.AllowOrigins), zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", healthHandler(opts.HealthCheck))
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	r.GET("/session", sessionH.GetSession)
	r.GET("/session/events", JWTAuthMiddleware(opts.JWT), sessionH.Events)

	auth := r.Group("/auth")
	auth.POST("/signup", authH.SignUp)
	auth.POST("/signin", authH.SignIn)
	auth.POST("/confirm", authH.Confirm)
	auth.POST("/resend", authH.Resend)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/signout", JWTAuthMiddleware(opts.JWT), authH.SignOut)

	protected := r.Group("", JWTAuthMiddleware(opts.JWT))
	protected.GET("/composer", responseH.Composer)
	protected.GET("/responses", responseH.List)
	protected.POST("/responses", configGateMiddleware(opts.ConfigErr), responseH.Create)
	protected.GET("/responses/:id/text", responseH.Text)
	protected.GET("/responses/:id/share", responseH.Share)
	protected.GET("/responses/:id/card.png", responseH.Card)
	protected.POST("/responses/:id/meme", configGateMiddleware(opts.ConfigErr), responseH.Meme)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
// Los handlers que devuelven PNG, texto o SSE lo sobrescriben.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// configGateMiddleware responde 503 con la pista de remediacion si falta configuracion.
func configGateMiddleware(configErr error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if configErr == nil {
			c.Next()
			return
		}
		body := gin.H{"error": configErr.Error()}
		var cfgErr *config.ConfigurationError
		if errors.As(configErr, &cfgErr) {
			body["missing"] = cfgErr.Missing
			body["hint"] = cfgErr.Hint()
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, body)
	}
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

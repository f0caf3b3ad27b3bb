package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"libertax/internal/config"
	"libertax/internal/db"
	"libertax/internal/email"
	apihttp "libertax/internal/http"
	"libertax/internal/llm"
	"libertax/internal/metrics"
	"libertax/internal/render"
	"libertax/internal/repository"
	"libertax/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// La configuracion incompleta no detiene el proceso: la puerta de sesion la muestra.
	configErr := cfg.Validate()
	if configErr != nil {
		logger.Warn("configuration incomplete", zap.Error(configErr))
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL, "up", 0); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	var llmClient llm.Client = llm.NewDisabledClient("GEMINI_API_KEY not configured")
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiTextModel, cfg.GeminiImageModel, logger)
		if err != nil {
			logger.Warn("gemini client init failed", zap.Error(err))
		} else {
			llmClient = gemini
		}
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	attemptWindow := 15 * time.Minute
	var (
		limiter      = service.NewMemoryAttemptLimiter(attemptWindow, cfg.AuthMaxAttempts)
		inflight     = service.NewMemoryInFlightSet()
		sessionStore service.SessionStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisAttemptLimiter(redisClient, attemptWindow, cfg.AuthMaxAttempts)
			inflight = service.NewRedisInFlightSet(redisClient, inflightTTL(cfg.GenerationTimeout))
			sessionStore = service.NewRedisSessionStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		sessionStore,
	)

	userRepo := repository.NewPgUserRepository(pool)
	responseRepo := repository.NewPgResponseRepository(pool)

	userSvc := service.NewUserService(logger, userRepo, emailSender, service.UserServiceOptions{
		RequireConfirmation: cfg.AuthRequireEmailConfirmation,
		Limiter:             limiter,
	})
	generationSvc := service.NewGenerationService(llmClient, logger, service.GenerationOptions{
		Temperature: cfg.GenerationTemp,
		Timeout:     cfg.GenerationTimeout,
		Metrics:     recorder,
	})
	workspaces := service.NewWorkspaceRegistry(logger, responseRepo, generationSvc, service.WorkspaceOptions{
		InFlight: inflight,
		Metrics:  recorder,
	})
	sessionSvc := service.NewSessionService(logger, userSvc, jwtSvc, workspaces, service.NewSessionHub(), configErr, service.GateOptions{
		LoadingText:      cfg.LoadingText,
		ConfigErrorTitle: cfg.ConfigErrorTitle,
	})

	cards, err := render.NewCardRenderer()
	if err != nil {
		logger.Fatal("card renderer", zap.Error(err))
	}

	router := apihttp.NewRouter(logger,
		apihttp.RouterOptions{
			AllowOrigins: cfg.CORSAllowOrigins,
			JWT:          jwtSvc,
			ConfigErr:    configErr,
			HealthCheck:  func(ctx context.Context) error { return db.Ping(ctx, pool) },
			Metrics:      metrics.Handler(reg),
		},
		apihttp.NewAuthHandler(logger, sessionSvc, userSvc),
		apihttp.NewSessionHandler(logger, sessionSvc),
		apihttp.NewResponseHandler(logger, workspaces, cards),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// inflightTTL cubre la generacion mas larga permitida; sin limite el lock se renueva solo.
func inflightTTL(generationTimeout time.Duration) time.Duration {
	ttl := 2 * time.Minute
	if generationTimeout+30*time.Second > ttl {
		ttl = generationTimeout + 30*time.Second
	}
	return ttl
}

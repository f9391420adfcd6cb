package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/tasktrack/internal/auth"
	"github.com/BradenHooton/tasktrack/internal/config"
	"github.com/BradenHooton/tasktrack/internal/database"
	"github.com/BradenHooton/tasktrack/internal/handlers"
	middlewareCustom "github.com/BradenHooton/tasktrack/internal/middleware"
	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/BradenHooton/tasktrack/internal/repositories"
	"github.com/BradenHooton/tasktrack/internal/routes"
	"github.com/BradenHooton/tasktrack/internal/services"
	pkgauth "github.com/BradenHooton/tasktrack/pkg/auth"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	ownershipRepo := repositories.NewOwnershipRepository(db)

	// Credential primitives
	hasher, err := pkgauth.NewHasher(cfg.Auth.Password, cfg.Auth.HashWorkers)
	if err != nil {
		logger.Error("invalid password policy", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:     cfg.Auth.JWTSecret,
		Algorithm:  cfg.Auth.JWTAlgorithm,
		Issuer:     cfg.Auth.JWTIssuer,
		AccessTTL:  cfg.Auth.AccessTokenExpiry,
		RefreshTTL: cfg.Auth.RefreshTokenExpiry,
	})
	if err != nil {
		logger.Error("failed to initialize token manager", slog.Any("error", err))
		os.Exit(1)
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	guard := auth.NewSessionGuard(tokenManager, userRepo, logger, ipConfig)
	authorizer := auth.NewOwnershipAuthorizer(ownershipRepo.Lookups(), logger)

	// Timing delay for failed logins
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.FailureDelay,
		RandomDelay: cfg.Auth.FailureJitter,
	})

	// Registration notices go through SES only when a sender is configured
	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.Email.Sender != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ses, err := services.NewSESNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.Sender, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = ses
	}

	// Shared rate-limit counter when Redis is configured
	rateLimit := middlewareCustom.RateLimitConfig{
		Requests: cfg.Server.AuthRateLimit,
		Window:   cfg.Server.AuthRateWindow,
		IPConfig: ipConfig,
	}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", slog.Any("error", err))
		}
		cancel()
		rateLimit.Counter = middlewareCustom.NewRedisLimitCounter(redisClient, "")
	}

	// Initialize services
	lockout := models.LockoutPolicy{
		Threshold: cfg.Auth.LockoutThreshold,
		Duration:  cfg.Auth.LockoutDuration,
	}
	authService := services.NewAuthService(services.AuthDeps{
		Users:    userRepo,
		Hasher:   hasher,
		Tokens:   tokenManager,
		Sessions: guard,
		Timing:   timingDelay,
		Notifier: notifier,
		Lockout:  lockout,
		Logger:   logger,
	})
	userService := services.NewUserService(userRepo, hasher, lockout, logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	userHandler := handlers.NewUserHandler(userService)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// Register routes
	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler: authHandler,
		UserHandler: userHandler,
		Guard:       guard,
		Authorizer:  authorizer,
		RateLimit:   rateLimit,
		Health:      handlers.Health(db),
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

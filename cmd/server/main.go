package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/featureflags"
	"github.com/aryan0dhankhar/assettrack/internal/handler"
	"github.com/aryan0dhankhar/assettrack/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/assettrack/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/assettrack/internal/observability/tracing"
	"github.com/aryan0dhankhar/assettrack/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/assettrack/internal/repository"
	"github.com/aryan0dhankhar/assettrack/internal/security"
	"github.com/aryan0dhankhar/assettrack/internal/security/audit"
	"github.com/aryan0dhankhar/assettrack/internal/security/auth"
	"github.com/aryan0dhankhar/assettrack/internal/security/ratelimit"
	"github.com/aryan0dhankhar/assettrack/internal/service"
	"github.com/aryan0dhankhar/assettrack/internal/worker"
	"github.com/aryan0dhankhar/assettrack/pkg/config"
	"github.com/aryan0dhankhar/assettrack/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting AssetTrack server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, tracing.Options{
		ServiceName: "assettrack",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Database and schema
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(pool.GetDB(), log); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Redis is optional; it only backs the principal cache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// 6. Initialize repositories
	db := pool.GetDB()
	userRepo := repository.NewPostgresUserRepository(db, log)
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	transactor := repository.NewPostgresTransactor(db, log)

	var principalCache domain.PrincipalCache
	if redisClient != nil {
		principalCache = repository.NewRedisPrincipalCache(redisClient,
			circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second), log)
	} else {
		principalCache = repository.NewMemoryPrincipalCache()
	}

	// 7. Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	auditLogger := audit.NewLogger(log)
	guard := security.NewGuard(tokenManager, userRepo, log).WithCache(principalCache, cfg.PrincipalCacheTTL)
	policy := security.NewPolicy(guard, auditLogger, log)
	flags := featureflags.FromEnv()

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rateLimiter.Stop()
	loginLimiter := ratelimit.NewPerMinute(cfg.LoginRateLimitPerMinute)
	defer loginLimiter.Stop()

	// 8. Initialize services
	provisioner := service.NewProvisioner(tenantRepo, flags, log)
	authService := service.NewAuthService(userRepo, transactor, provisioner, hasher, tokenManager, flags, log)
	userService := service.NewUserService(userRepo, tenantRepo, transactor, provisioner, policy, guard, hasher, auditLogger, log)
	tenantService := service.NewTenantService(tenantRepo, userRepo, transactor, policy, auditLogger, log)

	// 9. Initialize handlers
	var redisPinger handler.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	router := handler.NewRouter(handler.RouterConfig{
		Auth:           handler.NewAuthHandler(authService, log),
		Users:          handler.NewUsersHandler(userService, log),
		Tenants:        handler.NewTenantsHandler(tenantService, log),
		Health:         handler.NewHealthHandler(handler.PingFunc(pool.Health), redisPinger, log),
		Resolver:       guard,
		Audit:          auditLogger,
		Limiter:        rateLimiter,
		LoginLimiter:   loginLimiter,
		TrustProxy:     cfg.TrustProxyHeaders,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	// 10. Start counter reconciliation in background
	reconciler := worker.NewReconciler(tenantRepo, userRepo, log, cfg.ReconcileInterval)
	go reconciler.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      otelhttp.NewHandler(router, "assettrack"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.String("addr", server.Addr),
		slog.Float64("rate_limit_rps", cfg.RateLimitRPS),
		slog.Bool("principal_cache", cfg.PrincipalCacheTTL > 0),
		slog.Bool("public_registration", flags.Enabled(featureflags.PublicRegistration)),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop reconciler
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

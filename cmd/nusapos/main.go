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

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/nusapos/nusapos/internal/app"
	"github.com/nusapos/nusapos/internal/auth"
	"github.com/nusapos/nusapos/internal/observability"
	"github.com/nusapos/nusapos/internal/platform/cache"
	"github.com/nusapos/nusapos/internal/platform/db"
	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/roles"
	"github.com/nusapos/nusapos/internal/shared"
	"github.com/nusapos/nusapos/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	flushSentry, err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     cfg.AppRelease,
	})
	if err != nil {
		logger.Warn("sentry init", slog.Any("error", err))
	}
	defer flushSentry()

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	throttleCfg := auth.ThrottleConfig{MaxFailures: cfg.LoginMaxFailures, LockDuration: cfg.LoginLockDuration}
	var throttle auth.Throttle
	switch cfg.LoginThrottleBackend {
	case "redis":
		redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		throttle = auth.NewRedisThrottle(redisClient, throttleCfg)
	default:
		throttle = auth.NewMemoryThrottle(throttleCfg, nil)
	}

	metrics := observability.NewMetrics()

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.AuthAccessSecret,
		RefreshSecret: cfg.AuthRefreshSecret,
		AccessTTL:     cfg.AuthAccessTTL,
		RefreshTTL:    cfg.AuthRefreshTTL,
		Issuer:        cfg.AuthIssuer,
	}, nil)
	if err != nil {
		logger.Error("token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	tokenHasher, err := auth.NewArgon2Hasher(auth.DefaultArgon2Params())
	if err != nil {
		logger.Error("token hasher", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(dbpool)
	registry := auth.NewRegistry(authRepo, issuer, tokenHasher, auth.RegistryConfig{IdleTimeout: cfg.AuthIdleTimeout}, logger, nil)
	passwordHasher := auth.BcryptHasher{Cost: max(cfg.BcryptCost, bcrypt.MinCost)}
	authService := auth.NewService(authRepo, passwordHasher, registry, throttle,
		auth.ServiceConfig{DefaultRole: cfg.RegisterDefaultRole}, metrics, logger)

	resolver := rbac.NewDefaultResolver()
	rbacService := rbac.NewService(rbac.NewPGStore(dbpool), resolver)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	guard := auth.NewGuard(issuer, logger)

	authHandler := auth.NewHandler(logger, authService, rbacService, guard, auth.HandlerConfig{
		Cookies: auth.CookieConfig{
			Secure:     cfg.IsProduction(),
			AccessTTL:  cfg.AuthAccessTTL,
			RefreshTTL: cfg.AuthRefreshTTL,
		},
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	auditLogger := shared.NewAuditLogger(dbpool)
	rolesService := roles.NewService(roles.NewRepository(dbpool), resolver, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)
	usersService := users.NewService(users.NewRepository(dbpool), auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		Guard:              guard,
		PermissionsHandler: permissionsHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		Metrics:            metrics,
		Ready: func(r *http.Request) error {
			if err := dbpool.Ping(r.Context()); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(r.Context()).Err(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("throttle", cfg.LoginThrottleBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tagstone/tagstone/internal/app"
	"github.com/tagstone/tagstone/internal/auth"
	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/bootstrap"
	"github.com/tagstone/tagstone/internal/categories"
	"github.com/tagstone/tagstone/internal/groups"
	"github.com/tagstone/tagstone/internal/identity"
	"github.com/tagstone/tagstone/internal/observability"
	"github.com/tagstone/tagstone/internal/permissions"
	"github.com/tagstone/tagstone/internal/platform/cache"
	"github.com/tagstone/tagstone/internal/platform/db"
	"github.com/tagstone/tagstone/internal/users"
	"github.com/tagstone/tagstone/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := identity.NewRepository(dbpool)

	if err := bootstrap.Seed(ctx, repo, logger); err != nil {
		logger.Error("seed defaults", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	sessions := authz.NewSessionManager(repo, []byte(cfg.TokenSecret), cfg.SessionTTL, logger, nil)
	resolver := authz.NewResolver(repo, nil)
	engine := authz.NewEngine(sessions, resolver, metrics, logger)

	verifier := auth.NewGoogleVerifier(cfg.GoogleClientID)
	throttle := auth.NewThrottle(redisClient, cfg.LoginAttemptLimit, cfg.LoginAttemptWindow)
	authService := auth.NewService(repo, sessions, verifier, logger)
	authHandler := auth.NewHandler(logger, authService, throttle)

	universe := permissions.NewUniverse(repo)

	usersService := users.NewService(users.NewStore(repo), resolver, universe, logger)
	usersHandler := users.NewHandler(logger, usersService)

	groupsService := groups.NewService(groups.NewStore(repo), universe, logger)
	groupsHandler := groups.NewHandler(logger, groupsService)

	categoriesService := categories.NewService(categories.NewStore(repo), logger)
	categoriesHandler := categories.NewHandler(logger, categoriesService)

	permissionsService := permissions.NewService(repo, universe, logger)
	permissionsHandler := permissions.NewHandler(logger, permissionsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Engine:             engine,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		GroupsHandler:      groupsHandler,
		CategoriesHandler:  categoriesHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

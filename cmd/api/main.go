package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/karteji/internal/api/http"
	"github.com/spec-kit/karteji/internal/api/http/handlers"
	"github.com/spec-kit/karteji/internal/auth"
	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/directory"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/observability"
	"github.com/spec-kit/karteji/internal/persistence"
	"github.com/spec-kit/karteji/internal/repository"
	"github.com/spec-kit/karteji/internal/service"
	"github.com/spec-kit/karteji/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open document store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer backend.Close(context.Background())

	metrics := observability.NewMetrics()
	dir := directory.New(backend.Store, logger, metrics)
	startCtx, startCancel := context.WithTimeout(ctx, cfg.Directory.OpTimeout())
	if err := dir.Start(startCtx); err != nil {
		startCancel()
		logger.Fatal("failed to load member directory", zap.Error(err))
	}
	startCancel()
	defer dir.Stop()

	memberRepo := repository.NewMemberRepository(backend.Store)
	identityRepo := repository.NewIdentityRepository(backend.Store)
	settingsRepo := repository.NewSettingsRepository(backend.Store)
	dispatcher := events.NewInMemoryDispatcher()

	var revocations auth.RevocationList = auth.NewMemoryRevocationList()
	if backend.Redis != nil {
		revocations = auth.NewRedisRevocationList(backend.Redis.Client, backend.Redis.KeyPrefix())
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.App.Name)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		MemberRepo:   memberRepo,
		IdentityRepo: identityRepo,
		TokenManager: tokens,
		Revocations:  revocations,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	membershipService := service.NewMembershipService(*cfg, service.MembershipDependencies{
		MemberRepo:   memberRepo,
		IdentityRepo: identityRepo,
		SettingsRepo: settingsRepo,
		Directory:    dir,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	reportService := service.NewReportService(*cfg, service.ReportDependencies{
		ReportRepo: repository.NewReportRepository(backend.Store),
		Directory:  dir,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	settingsService := service.NewSettingsService(*cfg, settingsRepo, dir)
	notificationService := service.NewNotificationService(*cfg, dispatcher,
		repository.NewNotificationRepository(backend.Store), dir, logger)

	var kafkaSink *events.KafkaSink
	if len(cfg.Notification.KafkaBrokers) > 0 {
		kafkaSink = events.NewKafkaSink(cfg.Notification.KafkaBrokers, cfg.Notification.KafkaTopic)
		defer kafkaSink.Close() //nolint:errcheck
	}
	worker.StartNotificationWorker(dispatcher, notificationService, kafkaSink, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, backend.Name, backend.Store, dir),
		Auth:           handlers.NewAuthHandler(authService),
		Members:        handlers.NewMembersHandler(membershipService),
		Verification:   handlers.NewVerificationHandler(membershipService, logger),
		Reports:        handlers.NewReportsHandler(reportService),
		Settings:       handlers.NewSettingsHandler(settingsService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, revocations, identityRepo),
		MemberSource:   dir,
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("backend", backend.Name))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

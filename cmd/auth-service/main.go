package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/backoffice-kit/auth-service/internal/app"
	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/config"
	"github.com/backoffice-kit/auth-service/internal/http/handler"
	"github.com/backoffice-kit/auth-service/internal/http/router"
	"github.com/backoffice-kit/auth-service/internal/mail"
	"github.com/backoffice-kit/auth-service/internal/observability"
	"github.com/backoffice-kit/auth-service/internal/repository"
	"github.com/backoffice-kit/auth-service/internal/security"
	"github.com/backoffice-kit/auth-service/internal/service"
	"github.com/backoffice-kit/auth-service/internal/tools/authcheck"
)

func main() {
	root := &cobra.Command{Use: "auth-service", Short: "Authentication and session lifecycle service"}

	var envFile string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	serve.Flags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")

	root.AddCommand(serve)
	root.AddCommand(authcheck.NewRootCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, envFile string) error {
	cfg, err := config.Load(ctx, envFile)
	if err != nil {
		return err
	}

	logger, loggerProvider, err := observability.InitLogger(ctx, cfg)
	if err != nil {
		return err
	}

	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	identities := repository.NewIdentityRepository(db)
	sessionCache := cache.New(redisClient, cfg.CachePrefix)
	tokens := security.NewTokenManager(cfg.Secret)
	digitCodes := service.NewDigitCodeService(sessionCache, cfg.DigitCodeTTL)
	oneTime := service.NewOneTimeLinkService(sessionCache, cfg.InviteTTL, cfg.OneTimeTokenTTL)

	webAuthn, err := service.NewWebAuthnService(service.WebAuthnConfig{
		RPID:           cfg.RPID,
		RPName:         cfg.RPName,
		ExpectedOrigin: cfg.ExpectedOrigin,
		Timeout:        cfg.WebAuthnTimeout,
	}, sessionCache, identities)
	if err != nil {
		return fmt.Errorf("init webauthn: %w", err)
	}

	mailer := mail.NewSMTPSender(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})

	flow := service.NewLoginOrchestrator(service.LoginOrchestratorParams{
		Identities: identities,
		Passwords:  security.NewPasswordHasher(),
		Tokens:     tokens,
		Cache:      sessionCache,
		DigitCodes: digitCodes,
		WebAuthn:   webAuthn,
		OneTime:    oneTime,
		Audit:      observability.NewSlogAuditNotifier(logger),
		Mail:       mailer,
		Policy: service.TokenPolicy{
			AccessTTL:    cfg.AccessTTL,
			RefreshTTL:   cfg.RefreshTTL,
			APIExtension: cfg.APITokenTTL,
		},
		AllowHost: cfg.AllowHost,
	})

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(flow),
		TokenManager:     tokens,
		CORSOrigins:      cfg.CORSOrigins,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	application := app.New(cfg, logger, server, runtime)
	runErr := application.Run(ctx)

	if loggerProvider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "logger shutdown:", err)
		}
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("close redis", "error", err)
	}
	return runErr
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/punchdeck/punchdeck/internal/auth"
	"github.com/punchdeck/punchdeck/internal/config"
	"github.com/punchdeck/punchdeck/internal/database"
	middlewareCustom "github.com/punchdeck/punchdeck/internal/middleware"
	"github.com/punchdeck/punchdeck/internal/ratelimit"
	"github.com/punchdeck/punchdeck/internal/repositories"
	"github.com/punchdeck/punchdeck/internal/services"
	"github.com/punchdeck/punchdeck/internal/sessionstore"
	pkglogger "github.com/punchdeck/punchdeck/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	methodRepo := repositories.NewMfaMethodRepository(db)
	challengeRepo := repositories.NewEmailChallengeRepository(db)
	recoveryRepo := repositories.NewRecoveryCodeRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	resetLogRepo := repositories.NewResetLogRepository(db)

	// Shared primitives
	auditLogger := pkglogger.NewAuditLogger(logger)
	limiter := ratelimit.New(ratelimit.Config{
		Backend:       cfg.RateLimit.Backend,
		RedisAddr:     cfg.RateLimit.RedisAddr,
		RedisPassword: cfg.RateLimit.RedisPassword,
		RedisDB:       cfg.RateLimit.RedisDB,
		FilePath:      cfg.RateLimit.FilePath,
		MaxKeys:       cfg.RateLimit.MaxKeys,
	}, logger)
	pending := sessionstore.NewMemory()
	totpEngine := auth.NewTOTPEngine(limiter, cfg.MFA.TOTPIssuer)

	snapshotCipher, err := auth.NewSnapshotCipher(cfg.Security.SnapshotKey, cfg.IsProduction())
	if err != nil {
		logger.Error("failed to initialize snapshot cipher", slog.Any("error", err))
		os.Exit(1)
	}

	mailer, err := services.NewAWSSESMailer(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	mfaGate := services.NewMfaGate(pending, logger, services.MfaGateConfig{
		TTL: cfg.MFA.PendingLoginTTL,
	})
	totpService := services.NewTOTPService(methodRepo, recoveryRepo, totpEngine, pending, db, logger, services.TOTPConfig{
		Digits:           cfg.MFA.TOTPDigits,
		Period:           cfg.MFA.TOTPPeriod,
		Window:           cfg.MFA.TOTPWindow,
		MaxFailures:      cfg.MFA.MaxFailures,
		LockDuration:     cfg.MFA.LockDuration,
		PendingSecretTTL: cfg.MFA.PendingSecretTTL,
	})
	emailOTPService := services.NewEmailOTPService(challengeRepo, mailer, limiter, logger, services.EmailOTPConfig{
		CodeLength:   cfg.MFA.OTPCodeLength,
		TTL:          cfg.MFA.OTPTTL,
		MaxAttempts:  cfg.MFA.OTPMaxAttempts,
		LockDuration: cfg.MFA.LockDuration,
		IssueLimit:   cfg.MFA.OTPIssueLimit,
		IssueWindow:  cfg.MFA.OTPIssueWindow,
	})
	recoveryService := services.NewRecoveryService(recoveryRepo, methodRepo, limiter, db, logger, services.RecoveryConfig{
		CodeCount:    cfg.MFA.RecoveryCount,
		RedeemLimit:  cfg.MFA.MaxFailures,
		RedeemWindow: cfg.MFA.LockDuration,
	})
	sessionGuard := services.NewSessionGuard(sessionRepo, auditLogger, logger)
	resetService := services.NewResetService(methodRepo, recoveryRepo, resetLogRepo, snapshotCipher, pending, db, auditLogger, logger)

	// WebAuthn needs the account tier's directory to label ceremonies;
	// the embedding application injects it when mounting controllers.
	core := services.Bundle{
		Gate:     mfaGate,
		TOTP:     totpService,
		EmailOTP: emailOTPService,
		Recovery: recoveryService,
		Sessions: sessionGuard,
		Reset:    resetService,
	}
	logger.Info("mfa core initialized", slog.Any("capabilities", core.Enabled()))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.RateLimitByIP(middlewareCustom.DefaultMfaRateLimit()))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

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

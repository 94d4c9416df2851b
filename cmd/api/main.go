package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"membershipinitiation/config"
	"membershipinitiation/internal/adapters/auth"
	"membershipinitiation/internal/adapters/email"
	"membershipinitiation/internal/adapters/validator"
	delivery "membershipinitiation/internal/delivery/http"
	"membershipinitiation/internal/delivery/http/controllers"
	"membershipinitiation/internal/delivery/http/middleware"
	"membershipinitiation/internal/ratelimit"
	"membershipinitiation/internal/repository/postgres"
	"membershipinitiation/internal/services"
)

// @title Membership Initiation API
// @version 1.0
// @description Gated membership initiation pipeline: invitation redemption, onboarding, validation and credential issuance.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token: admin JWT or the privileged operator token.
func main() {
	logger := config.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("ping database", "err", err)
		os.Exit(1)
	}

	invitationRepo := postgres.NewInvitationRepository(db)
	sessionRepo := postgres.NewOnboardingSessionRepository(db)
	membershipRepo := postgres.NewMembershipRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	pinHasher := auth.NewBcryptPinHasher(bcrypt.DefaultCost)
	_, tokenVerifier := auth.NewJWTSigner(cfg.JWTSecret)

	limiter := ratelimit.New(ratelimit.Config{
		Requests: cfg.RateLimitRequests,
		Burst:    cfg.RateLimitBurst,
		Window:   cfg.RateLimitWindow,
	})

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretKey,
		},
	})
	if err != nil {
		logger.Error("create mailer", "err", err)
		os.Exit(1)
	}
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer())

	validatorClient := validator.NewClient(cfg.ValidatorURL, cfg.ValidatorAPIKey, cfg.ValidatorTimeout, nil)
	gate := services.NewValidationGate(sessionRepo, invitationRepo, validatorClient, auditRepo, services.GateConfig{
		ConfidenceThreshold: cfg.ValidatorConfidenceThreshold,
		ValidatorTimeout:    cfg.ValidatorTimeout,
		MaxRetries:          uint64(cfg.ValidatorRetries),
	}, logger)

	invitationService := services.NewInvitationService(invitationRepo, auditRepo, pinHasher, limiter, emailService, cfg.InvitationTTL, logger)
	onboardingService := services.NewOnboardingService(sessionRepo, invitationRepo, gate, auditRepo, limiter, logger)
	reviewService := services.NewReviewService(sessionRepo, auditRepo, logger)
	membershipService := services.NewMembershipService(membershipRepo, sessionRepo, invitationRepo, auditRepo, logger)

	mux := delivery.NewRouter(delivery.RouterDeps{
		Invitations:  controllers.NewInvitationController(logger, invitationService),
		Onboarding:   controllers.NewOnboardingController(logger, onboardingService),
		Reviews:      controllers.NewReviewController(logger, reviewService),
		Memberships:  controllers.NewMembershipController(logger, membershipService),
		RequireAdmin: middleware.RequireAdmin(tokenVerifier, cfg.OperatorToken, logger),
		RateLimit:    middleware.RateLimit(limiter),
	})

	handler := middleware.CORS(cfg.AllowedOrigins, middleware.LoggingMiddleware(logger, mux))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

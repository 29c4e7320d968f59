package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/usermgmt/internal/auth"
	"github.com/BradenHooton/usermgmt/internal/config"
	"github.com/BradenHooton/usermgmt/internal/events"
	"github.com/BradenHooton/usermgmt/internal/lockout"
	"github.com/BradenHooton/usermgmt/internal/services"
	pkgauth "github.com/BradenHooton/usermgmt/pkg/auth"
	pkglogger "github.com/BradenHooton/usermgmt/pkg/logger"
)

const tokenIssuer = "usermgmt"

// app holds the wired service layer shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store
	tokens    *auth.TokenManager
	auth      *services.AuthService
	users     *services.UserService
	verifier  *services.EmailVerificationService
	publisher events.Publisher

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, closeStore, err := openStore(ctx, cfg, migrate, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = publisher
	a.closers = append(a.closers, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", slog.Any("error", err))
		}
	})

	mailer, err := newMailer(ctx, cfg.Email, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.tokens, err = auth.NewTokenManager(auth.TokenConfig{
		Secret:          cfg.Auth.JWTSecret,
		Algorithm:       cfg.Auth.JWTAlgorithm,
		AccessTTL:       cfg.Auth.AccessTokenExpiry,
		VerificationTTL: cfg.Auth.VerificationTokenExpiry,
		Issuer:          tokenIssuer,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := lockout.NewPolicy(cfg.Auth.MaxLoginAttempts)
	if err != nil {
		a.Close()
		return nil, err
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	a.verifier = services.NewEmailVerificationService(
		st, a.tokens, mailer, cfg.Email.VerificationURLBase, publisher, logger, auditLogger,
	)

	authService, err := services.NewAuthService(
		st, pkgauth.NewArgon2Hasher(pkgauth.DefaultArgon2Params), a.tokens, policy, logger, auditLogger,
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.auth = authService.
		WithTimingDelay(auth.NewTimingDelay(auth.TimingConfig{
			BaseDelay:   cfg.Auth.TimingDelayBase,
			RandomDelay: cfg.Auth.TimingDelayRandom,
		})).
		WithVerification(a.verifier).
		WithPublisher(publisher).
		WithEnvironment(cfg.Server.Env)

	a.users = services.NewUserService(st, publisher, logger, auditLogger)

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newPublisher(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	if cfg.Backend != config.EventsBackendRabbitMQ {
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
		URL:   cfg.RabbitMQURL,
		Queue: cfg.Queue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	logger.Info("publishing account events", slog.String("queue", cfg.Queue))
	return publisher, nil
}

func newMailer(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (services.Mailer, error) {
	if cfg.Provider != config.EmailProviderSES {
		return services.NewLogMailer(logger), nil
	}

	mailer, err := services.NewSESMailer(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	return mailer, nil
}

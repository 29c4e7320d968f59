package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/usermgmt/internal/config"
	"github.com/BradenHooton/usermgmt/internal/handlers"
	"github.com/BradenHooton/usermgmt/internal/routes"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations before serving")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("storage", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, serveMigrate, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Bootstrap.AdminEmail != "" {
		bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		created, err := a.auth.BootstrapAdmin(bootstrapCtx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		cancel()
		if err != nil {
			logger.Error("failed to bootstrap admin account", slog.Any("error", err))
		} else if created {
			logger.Info("admin account created")
		}
	}

	ipResolver, err := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	router := routes.NewRouter(routes.Dependencies{
		UserHandler:            handlers.NewUserHandler(a.users, logger),
		AuthHandler:            handlers.NewAuthHandler(a.auth, a.verifier, ipResolver, logger),
		HealthHandler:          handlers.NewHealthHandler(a.store, logger),
		Tokens:                 a.tokens,
		IPResolver:             ipResolver,
		Logger:                 logger,
		Env:                    cfg.Server.Env,
		AllowedOrigins:         cfg.Server.AllowedOrigins,
		LoginRateLimitPerMin:   cfg.Server.LoginRateLimitPerMin,
		AccountRateLimitPerMin: cfg.Server.AccountRateLimitPerMin,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

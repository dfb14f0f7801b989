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

	"github.com/go-accounts-nosql/internal/application/account"
	"github.com/go-accounts-nosql/internal/application/notification"
	"github.com/go-accounts-nosql/internal/config"
	"github.com/go-accounts-nosql/internal/infrastructure/dynamo"
	"github.com/go-accounts-nosql/internal/infrastructure/memory"
	"github.com/go-accounts-nosql/internal/infrastructure/smtp"
	"github.com/go-accounts-nosql/internal/infrastructure/sns"
	"github.com/go-accounts-nosql/internal/observability"
	"github.com/go-accounts-nosql/internal/pkg/password"
	"github.com/go-accounts-nosql/internal/pkg/validate"
	transporthttp "github.com/go-accounts-nosql/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hashParams, err := password.ProfileParams(cfg.Hash.Profile)
	if err != nil {
		return err
	}

	reg := observability.NewRegistry()
	metrics := observability.NewMetrics(reg)

	deps := account.ServiceDeps{
		Hasher:        password.NewHasher(hashParams, int64(cfg.Hash.MemoryBudgetMB)*1024),
		Policy:        passwordPolicy(cfg.Password),
		ActivationTTL: cfg.ActivationTTL,
		ResetTTL:      cfg.ResetTTL,
		StoreTimeout:  cfg.StoreTimeout,
		Metrics:       metrics,
	}
	if err := wireStore(ctx, cfg, &deps); err != nil {
		return err
	}

	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Accounts: account.NewService(deps),
		Notifier: notification.NewService(notification.ServiceDeps{Sender: sender, BaseURL: cfg.PublicBaseURL}),
		Registry: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreDriver, "hash_profile", cfg.Hash.Profile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func wireStore(ctx context.Context, cfg *config.Config, deps *account.ServiceDeps) error {
	switch cfg.StoreDriver {
	case "memory":
		if cfg.IsProduction() {
			return errors.New("STORE_DRIVER=memory is not allowed in production")
		}
		store := memory.New()
		deps.UserRepo = store.Users()
		deps.ActivationRepo = store.Activations()
		deps.ResetRepo = store.Resets()
		return nil
	case "dynamo":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		// Bootstrap DynamoDB tables (creates them if they don't exist).
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		if err := dynamo.WaitReady(ctx, client, cfg.DynamoTables); err != nil {
			return err
		}
		deps.UserRepo = dynamo.NewUserRepo(client, cfg.DynamoTables.Users)
		deps.ActivationRepo = dynamo.NewActivationRepo(client, cfg.DynamoTables)
		deps.ResetRepo = dynamo.NewResetRepo(client, cfg.DynamoTables)
		return nil
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notification.Sender, error) {
	switch cfg.NotifyDriver {
	case "smtp":
		return notification.MailSender(smtp.NewMailer(cfg)), nil
	case "sns":
		p, err := sns.NewPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return notification.TopicSender(p), nil
	case "log":
		if cfg.IsProduction() {
			return nil, errors.New("NOTIFY_DRIVER=log is not allowed in production")
		}
		return notification.LogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.NotifyDriver)
	}
}

func passwordPolicy(c config.PasswordConfig) validate.PasswordPolicy {
	return validate.PasswordPolicy{
		MinUpper:   c.MinUpper,
		MinSpecial: c.MinSpecial,
		MinDigit:   c.MinDigit,
		MinLower:   c.MinLower,
		MinLength:  c.MinLength,
		MaxLength:  c.MaxLength,
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	opts.Level = slog.LevelDebug
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

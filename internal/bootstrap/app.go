package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-auth/config"
	"github.com/target/mmk-auth/internal/service"
	"github.com/target/mmk-auth/internal/session"
)

// App is the fully wired auth stack handed to consumers.
type App struct {
	Config  config.AppConfig
	Logger  *slog.Logger
	Service *service.AuthService
	Session *session.Manager
	Metrics *Metrics

	store           *CredentialStore
	releaseProvider func()
}

// Build wires the credential store, identity backend, translator, auth
// service and session manager from cfg. A persisted session is restored
// before the manager is created.
func Build(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	translator, err := LoadTranslator(TranslatorOptions{Config: cfg.Translation, IsDev: cfg.IsDev, Logger: logger})
	if err != nil {
		return nil, err
	}

	store, err := BuildCredentialStore(ctx, StorageOptions{
		Credentials: cfg.Credentials,
		Redis:       cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger, store: store, releaseProvider: func() {}}

	provider, release, err := BuildIdentityProvider(IdentityOptions{Auth: cfg.Auth, Logger: logger})
	if err != nil {
		return nil, closeOnError(app, err)
	}
	app.releaseProvider = release

	app.Service, err = BuildAuthService(AuthServiceOptions{
		Provider:    provider,
		Credentials: store,
		Translator:  translator,
		Logger:      logger,
	})
	if err != nil {
		return nil, closeOnError(app, err)
	}

	app.Metrics = BuildMetrics(ctx, cfg.Observability, logger)

	app.Session, err = BuildSessionManager(ctx, SessionOptions{
		Service: app.Service,
		Metrics: app.Metrics.Sink,
		Logger:  logger,
	})
	if err != nil {
		return nil, closeOnError(app, err)
	}

	return app, nil
}

// Close releases the session subscription, the identity backend and every
// connection, in reverse construction order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Session != nil {
		a.Session.Close()
	}
	if a.releaseProvider != nil {
		a.releaseProvider()
	}

	var errs []error
	if err := a.Metrics.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metrics: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close credential store: %w", err))
	}
	return errors.Join(errs...)
}

func closeOnError(app *App, err error) error {
	if cerr := app.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

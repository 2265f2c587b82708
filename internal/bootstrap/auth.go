package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-auth/config"
	"github.com/target/mmk-auth/internal/adapters/devauth"
	"github.com/target/mmk-auth/internal/adapters/firebase"
	"github.com/target/mmk-auth/internal/observability/statsd"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/service"
	"github.com/target/mmk-auth/internal/session"
	"github.com/target/mmk-auth/internal/translate"
)

// IdentityOptions contains configuration for the identity backend.
type IdentityOptions struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildIdentityProvider creates the identity backend for the configured auth
// mode. The returned release func stops background timers; it is never nil.
//
//nolint:ireturn // the concrete backend is selected at runtime.
func BuildIdentityProvider(opts IdentityOptions) (ports.IdentityProvider, func(), error) {
	switch opts.Auth.Mode {
	case config.AuthModeMock:
		return buildDevAuthProvider(opts)
	case config.AuthModeFirebase:
		return buildFirebaseProvider(opts)
	default:
		return nil, nil, fmt.Errorf("unsupported auth mode %q", opts.Auth.Mode)
	}
}

//nolint:ireturn // see BuildIdentityProvider.
func buildDevAuthProvider(opts IdentityOptions) (ports.IdentityProvider, func(), error) {
	dev := opts.Auth.DevAuth
	// The default email only seeds an account once a password is configured.
	seedEmail := dev.Email
	if dev.Password == "" {
		seedEmail = ""
	}
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:          dev.UserID,
		Email:           seedEmail,
		Password:        dev.Password,
		SessionDuration: dev.SessionDuration,
		Secret:          []byte(dev.Secret),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	if opts.Logger != nil {
		opts.Logger.Warn("using dev auth provider; do not use in production", "seeded_email", seedEmail)
	}
	return prov, func() {}, nil
}

//nolint:ireturn // see BuildIdentityProvider.
func buildFirebaseProvider(opts IdentityOptions) (ports.IdentityProvider, func(), error) {
	fb := opts.Auth.Firebase
	if opts.Logger != nil {
		opts.Logger.Debug("firebase web config loaded", "firebase", fb)
	}

	prov, err := firebase.NewProvider(firebase.Config{
		APIKey:        fb.APIKey,
		ProjectID:     fb.ProjectID,
		BaseURL:       fb.BaseURL,
		ErrorCodePath: fb.ErrorCodePath,
		VerifyTokens:  fb.VerifyTokens,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create firebase provider: %w", err)
	}
	return prov, prov.Close, nil
}

// AuthServiceOptions contains the collaborators of the concrete auth service.
type AuthServiceOptions struct {
	Provider    ports.IdentityProvider
	Credentials ports.CredentialStore
	Translator  *translate.Translator
	Logger      *slog.Logger
}

// BuildAuthService creates the auth service over an identity backend and a
// credential store.
func BuildAuthService(opts AuthServiceOptions) (*service.AuthService, error) {
	svc, err := service.NewAuthService(service.AuthServiceOptions{
		Provider:    opts.Provider,
		Credentials: opts.Credentials,
		Translator:  opts.Translator,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	return svc, nil
}

// SessionOptions contains configuration for the session manager.
type SessionOptions struct {
	Service *service.AuthService
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// BuildSessionManager restores any persisted session and then builds the
// manager, so its initial state already reflects the cached user. A failed
// restore is logged and the manager starts anonymous.
func BuildSessionManager(ctx context.Context, opts SessionOptions) (*session.Manager, error) {
	if opts.Service == nil {
		return nil, errors.New("auth service is required")
	}

	if _, err := opts.Service.Restore(ctx); err != nil && opts.Logger != nil {
		opts.Logger.WarnContext(ctx, "session restore failed", "error", err)
	}

	mopts := []session.Option{session.WithLogger(opts.Logger)}
	if opts.Metrics != nil {
		mopts = append(mopts, session.WithMetrics(opts.Metrics))
	}
	return session.NewManager(opts.Service, mopts...), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainauth "github.com/target/mmk-auth/internal/domain/auth"
	apperrors "github.com/target/mmk-auth/internal/errors"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/translate"
)

// TokenKey is the credential store key holding the session token.
const TokenKey = "firebase_id_token"

const tracerName = "github.com/target/mmk-auth/internal/service"

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider    ports.IdentityProvider
	Credentials ports.CredentialStore
	Translator  *translate.Translator // defaults to translate.New with Logger
	Logger      *slog.Logger
	// TokenKey overrides the credential store key. Defaults to TokenKey.
	TokenKey string
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// AuthService implements ports.AuthService over a remote identity provider and
// a secure credential store. It is the last layer that sees classified errors:
// everything it returns is an *errors.AuthError whose Error() is display text.
type AuthService struct {
	provider   ports.IdentityProvider
	store      ports.CredentialStore
	translator *translate.Translator
	logger     *slog.Logger
	tracer     trace.Tracer
	tokenKey   string
}

var _ ports.AuthService = (*AuthService)(nil)

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Provider == nil {
		return nil, errors.New("IdentityProvider is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("CredentialStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr := opts.Translator
	if tr == nil {
		tr = translate.New(translate.Options{Logger: logger})
	}
	key := opts.TokenKey
	if key == "" {
		key = TokenKey
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &AuthService{
		provider:   opts.Provider,
		store:      opts.Credentials,
		translator: tr,
		logger:     logger.With("component", "auth_service"),
		tracer:     tracer,
		tokenKey:   key,
	}, nil
}

// MustNewAuthService constructs an AuthService and panics on invalid options.
func MustNewAuthService(opts AuthServiceOptions) *AuthService {
	svc, err := NewAuthService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create AuthService: %v", err))
	}
	return svc
}

// SignIn authenticates with email and password and persists the session token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (domainauth.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.SignIn")
	defer span.End()
	return s.establish(ctx, "sign in", func(ctx context.Context) (*ports.ProviderUser, error) {
		return s.provider.SignInWithPassword(ctx, email, password)
	})
}

// SignUp creates an account, signs it in and persists the session token.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (domainauth.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.SignUp")
	defer span.End()
	return s.establish(ctx, "sign up", func(ctx context.Context) (*ports.ProviderUser, error) {
		return s.provider.CreateUser(ctx, email, password)
	})
}

// establish runs a provider call that yields a session and persists its token.
// Persistence is part of success: if the token cannot be stored the provider
// session is dropped and the operation fails.
func (s *AuthService) establish(
	ctx context.Context,
	op string,
	call func(context.Context) (*ports.ProviderUser, error),
) (domainauth.User, error) {
	pu, err := call(ctx)
	if err != nil {
		return domainauth.User{}, s.fail(ctx, op, err)
	}
	if pu == nil {
		return domainauth.User{}, s.fail(ctx, op, errors.New("provider returned no user"))
	}

	token, err := s.provider.IDToken(ctx, pu)
	if err != nil {
		s.rollback(ctx, op)
		return domainauth.User{}, s.fail(ctx, op, fmt.Errorf("fetch id token: %w", err))
	}

	if err := s.store.Set(ctx, s.tokenKey, token); err != nil {
		s.rollback(ctx, op)
		s.logger.WarnContext(ctx, "persist credential failed", "op", op, "error", err)
		return domainauth.User{}, s.storageFailure(ctx, fmt.Errorf("persist token: %w", err))
	}

	user := normalizeUser(pu)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.uid", user.ID))
	s.logger.InfoContext(ctx, "auth session established", "op", op, "uid", user.ID)
	return *user, nil
}

// SignOut drops the provider session and always attempts to delete the
// persisted token, even when the provider call fails.
func (s *AuthService) SignOut(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.SignOut")
	defer span.End()

	provErr := s.provider.SignOut(ctx)
	delErr := s.store.Delete(ctx, s.tokenKey)

	switch {
	case provErr == nil && delErr == nil:
		s.logger.InfoContext(ctx, "auth session ended")
		return nil
	case provErr != nil:
		if delErr != nil {
			s.logger.WarnContext(ctx, "delete credential failed", "error", delErr)
		}
		return s.fail(ctx, "sign out", errors.Join(provErr, delErr))
	default:
		s.logger.WarnContext(ctx, "delete credential failed", "error", delErr)
		return s.storageFailure(ctx, fmt.Errorf("delete token: %w", delErr))
	}
}

// CurrentUser returns the provider's in-memory session. It performs no I/O.
func (s *AuthService) CurrentUser() *domainauth.User {
	return normalizeUser(s.provider.CurrentUser())
}

// OnAuthStateChanged forwards provider pushes through the same normalization
// used by SignIn and SignUp.
func (s *AuthService) OnAuthStateChanged(fn func(*domainauth.User)) func() {
	stop := s.provider.OnUserChanged(func(pu *ports.ProviderUser) {
		fn(normalizeUser(pu))
	})
	var once sync.Once
	return func() { once.Do(stop) }
}

// Restore resumes a session from the persisted token, if any. A token the
// backend rejects is deleted and Restore reports no session. Transient
// failures keep the token and return an error.
func (s *AuthService) Restore(ctx context.Context) (*domainauth.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Restore")
	defer span.End()

	token, err := s.store.Get(ctx, s.tokenKey)
	if errors.Is(err, ports.ErrCredentialNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageFailure(ctx, fmt.Errorf("read token: %w", err))
	}

	pu, err := s.provider.ResumeSession(ctx, token)
	if err != nil {
		if isRejectedToken(err) {
			s.logger.InfoContext(ctx, "discarding stale credential", "code", apperrors.CodeOf(err))
			if delErr := s.store.Delete(ctx, s.tokenKey); delErr != nil {
				s.logger.WarnContext(ctx, "delete stale credential failed", "error", delErr)
			}
			return nil, nil
		}
		return nil, s.fail(ctx, "restore", err)
	}

	user := normalizeUser(pu)
	if user != nil {
		s.logger.InfoContext(ctx, "auth session restored", "uid", user.ID)
	}
	return user, nil
}

func (s *AuthService) fail(ctx context.Context, op string, err error) error {
	authErr := s.translator.Error(err)
	s.logger.DebugContext(ctx, "auth operation failed",
		"op", op,
		"kind", authErr.Kind,
		"code", authErr.Code,
		"error", err,
	)
	recordFailure(ctx, authErr)
	return authErr
}

func (s *AuthService) storageFailure(ctx context.Context, cause error) error {
	authErr := apperrors.Storage(s.translator.Translate("", ""), cause)
	recordFailure(ctx, authErr)
	return authErr
}

func recordFailure(ctx context.Context, authErr *apperrors.AuthError) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(authErr.Cause)
	span.SetAttributes(
		attribute.String("auth.error_kind", string(authErr.Kind)),
		attribute.String("auth.error_code", authErr.Code),
	)
	span.SetStatus(codes.Error, authErr.Message)
}

func (s *AuthService) rollback(ctx context.Context, op string) {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.WarnContext(ctx, "rollback provider session failed", "op", op, "error", err)
	}
}

// normalizeUser maps a raw provider record into the domain shape.
// An empty provider email becomes the absent value.
func normalizeUser(pu *ports.ProviderUser) *domainauth.User {
	if pu == nil {
		return nil
	}
	u := domainauth.NewUser(pu.UID, pu.Email)
	return &u
}

func isRejectedToken(err error) bool {
	switch apperrors.CodeOf(err) {
	case translate.CodeUserTokenExpired,
		translate.CodeInvalidCredential,
		translate.CodeUserNotFound,
		translate.CodeUserDisabled:
		return true
	}
	return false
}

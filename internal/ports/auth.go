// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service
// and internal/session.
package ports

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/mmk-auth/internal/domain/auth"
)

// AuthService is the contract every identity backend integration satisfies
// for the session manager.
type AuthService interface {
	// SignIn authenticates an existing account.
	SignIn(ctx context.Context, email, password string) (domainauth.User, error)

	// SignUp creates an account and signs it in.
	SignUp(ctx context.Context, email, password string) (domainauth.User, error)

	// SignOut ends the session. Local credentials are cleared even when the
	// remote call fails.
	SignOut(ctx context.Context) error

	// CurrentUser returns the in-memory session, or nil. It never performs I/O.
	CurrentUser() *domainauth.User

	// OnAuthStateChanged registers an observer for session changes detected by
	// the backend. The returned disposer is idempotent; after it returns the
	// callback is never invoked again.
	OnAuthStateChanged(fn func(*domainauth.User)) (unsubscribe func())
}

// ProviderUser is the raw user record an identity backend hands back.
// Email is "" when the backend has none.
type ProviderUser struct {
	UID       string
	Email     string
	IDToken   string
	ExpiresAt time.Time
}

// IdentityProvider talks to a remote identity backend. Failures should be
// returned as *errors.ProviderError using the backend-neutral code vocabulary.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderUser, error)
	CreateUser(ctx context.Context, email, password string) (*ProviderUser, error)

	// IDToken returns a fresh credential token for u.
	IDToken(ctx context.Context, u *ProviderUser) (string, error)

	// SignOut drops the backend's in-memory session.
	SignOut(ctx context.Context) error

	// CurrentUser returns the backend's in-memory session without I/O.
	CurrentUser() *ProviderUser

	// ResumeSession re-establishes a session from a persisted token.
	ResumeSession(ctx context.Context, token string) (*ProviderUser, error)

	// OnUserChanged registers an observer for out-of-band session changes
	// (e.g. token expiry). A nil user means the session ended.
	OnUserChanged(fn func(*ProviderUser)) (unsubscribe func())
}

// ErrCredentialNotFound is returned by credential stores for missing keys.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore is a secure, durable key-value store for credential tokens.
type CredentialStore interface {
	Set(ctx context.Context, key, value string) error
	// Get returns ErrCredentialNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
}

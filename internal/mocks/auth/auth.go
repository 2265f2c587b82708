// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"sync"

	domainauth "github.com/target/mmk-auth/internal/domain/auth"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/pubsub"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthService     = (*MockAuthService)(nil)
	_ ports.CredentialStore = (*MemoryCredentialStore)(nil)
)

// Credentials records the arguments of a SignIn/SignUp call.
type Credentials struct {
	Email    string
	Password string
}

// MockAuthService is a func-field AuthService for session manager tests.
// Unset funcs succeed with a user derived from the email.
type MockAuthService struct {
	SignInFunc  func(ctx context.Context, email, password string) (domainauth.User, error)
	SignUpFunc  func(ctx context.Context, email, password string) (domainauth.User, error)
	SignOutFunc func(ctx context.Context) error

	// Current is returned by CurrentUser unless CurrentUserFunc is set.
	Current         *domainauth.User
	CurrentUserFunc func() *domainauth.User

	mu           sync.Mutex
	signInCalls  []Credentials
	signUpCalls  []Credentials
	signOutCalls int
	subscribes   int
	disposals    int

	listeners *pubsub.Registry[*domainauth.User]
	once      sync.Once
}

// NewMockAuthService creates a MockAuthService with no current user.
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

func (m *MockAuthService) registry() *pubsub.Registry[*domainauth.User] {
	m.once.Do(func() { m.listeners = pubsub.NewRegistry[*domainauth.User]() })
	return m.listeners
}

func (m *MockAuthService) SignIn(ctx context.Context, email, password string) (domainauth.User, error) {
	m.mu.Lock()
	m.signInCalls = append(m.signInCalls, Credentials{Email: email, Password: password})
	m.mu.Unlock()
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, email, password)
	}
	return domainauth.NewUser("mock-"+email, email), nil
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password string) (domainauth.User, error) {
	m.mu.Lock()
	m.signUpCalls = append(m.signUpCalls, Credentials{Email: email, Password: password})
	m.mu.Unlock()
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password)
	}
	return domainauth.NewUser("mock-"+email, email), nil
}

func (m *MockAuthService) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.signOutCalls++
	m.mu.Unlock()
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	return nil
}

func (m *MockAuthService) CurrentUser() *domainauth.User {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc()
	}
	return m.Current
}

// OnAuthStateChanged counts registrations and disposals.
func (m *MockAuthService) OnAuthStateChanged(fn func(*domainauth.User)) func() {
	m.mu.Lock()
	m.subscribes++
	m.mu.Unlock()

	stop := m.registry().Subscribe(fn)
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.disposals++
			m.mu.Unlock()
		})
		stop()
	}
}

// Push simulates an out-of-band session change from the backend.
func (m *MockAuthService) Push(u *domainauth.User) {
	m.registry().Publish(u)
}

// SignInCalls returns the recorded SignIn arguments.
func (m *MockAuthService) SignInCalls() []Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Credentials(nil), m.signInCalls...)
}

// SignUpCalls returns the recorded SignUp arguments.
func (m *MockAuthService) SignUpCalls() []Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Credentials(nil), m.signUpCalls...)
}

// SignOutCalls returns the number of SignOut calls.
func (m *MockAuthService) SignOutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOutCalls
}

// Subscriptions returns how many observers were registered and disposed.
func (m *MockAuthService) Subscriptions() (registered, disposed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribes, m.disposals
}

// MemoryCredentialStore is an in-memory credential store for unit tests.
type MemoryCredentialStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{values: make(map[string]string)}
}

func (m *MemoryCredentialStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryCredentialStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ports.ErrCredentialNotFound
	}
	return v, nil
}

func (m *MemoryCredentialStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Has reports whether key is present.
func (m *MemoryCredentialStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

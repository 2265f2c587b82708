// Package devauth provides a self-contained, config-driven IdentityProvider
// for local development and tests. Accounts live in memory.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/target/mmk-auth/internal/errors"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/pubsub"
	"github.com/target/mmk-auth/internal/translate"
	"github.com/target/mmk-auth/internal/validation"
)

const (
	issuer = "mmk-auth-devauth"
	// minPasswordLength mirrors the hosted backend's own floor, which is laxer
	// than the client-side strength check.
	minPasswordLength = 6
)

// Config controls the dev auth provider behavior.
// All fields are optional; Email and Password together seed one account.
type Config struct {
	UserID          string
	Email           string
	Password        string
	SessionDuration time.Duration // default 8h when zero
	// Secret signs tokens. A random secret is generated when empty, so tokens
	// do not survive a restart.
	Secret []byte
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

type account struct {
	uid      string
	email    string
	hash     []byte
	disabled bool
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Provider implements ports.IdentityProvider without any network calls.
type Provider struct {
	secret          []byte
	sessionDuration time.Duration
	cost            int
	now             func() time.Time

	mu       sync.Mutex
	accounts map[string]*account // by lower-cased email
	current  *ports.ProviderUser

	listeners *pubsub.Registry[*ports.ProviderUser]
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if (cfg.Email == "") != (cfg.Password == "") {
		return nil, errors.New("dev auth: Email and Password must be set together")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	if dur < 0 {
		return nil, fmt.Errorf("dev auth: SessionDuration must be positive, got %s", dur)
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("dev auth: BcryptCost out of range: %d", cost)
	}
	secret := append([]byte(nil), cfg.Secret...)
	if len(secret) == 0 {
		s, err := randomString(48)
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		secret = []byte(s)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	p := &Provider{
		secret:          secret,
		sessionDuration: dur,
		cost:            cost,
		now:             now,
		accounts:        make(map[string]*account),
		listeners:       pubsub.NewRegistry[*ports.ProviderUser](),
	}

	if cfg.Email != "" {
		uid := cfg.UserID
		if uid == "" {
			uid = uuid.NewString()
		}
		if err := p.addAccount(uid, cfg.Email, cfg.Password); err != nil {
			return nil, fmt.Errorf("seed account: %w", err)
		}
	}
	return p, nil
}

func (p *Provider) addAccount(uid, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[strings.ToLower(email)] = &account{uid: uid, email: email, hash: hash}
	return nil
}

// Disable marks the account for email as disabled. It reports whether the
// account exists.
func (p *Provider) Disable(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[strings.ToLower(email)]
	if ok {
		a.disabled = true
	}
	return ok
}

func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (*ports.ProviderUser, error) {
	if !validation.IsValidEmail(email) {
		return nil, apperrors.NewProviderError(translate.CodeInvalidEmail, "malformed email")
	}
	if password == "" {
		return nil, apperrors.NewProviderError(translate.CodeMissingPassword, "password is empty")
	}

	p.mu.Lock()
	a, ok := p.accounts[strings.ToLower(email)]
	p.mu.Unlock()
	if !ok {
		return nil, apperrors.NewProviderError(translate.CodeUserNotFound, "no account for email")
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return nil, apperrors.NewProviderError(translate.CodeWrongPassword, "password mismatch")
	}
	if a.disabled {
		return nil, apperrors.NewProviderError(translate.CodeUserDisabled, "account disabled")
	}
	return p.startSession(a)
}

func (p *Provider) CreateUser(_ context.Context, email, password string) (*ports.ProviderUser, error) {
	if !validation.IsValidEmail(email) {
		return nil, apperrors.NewProviderError(translate.CodeInvalidEmail, "malformed email")
	}
	if len([]rune(password)) < minPasswordLength {
		return nil, apperrors.NewProviderError(translate.CodeWeakPassword, "password shorter than 6 characters")
	}

	p.mu.Lock()
	_, exists := p.accounts[strings.ToLower(email)]
	p.mu.Unlock()
	if exists {
		return nil, apperrors.NewProviderError(translate.CodeEmailAlreadyInUse, "account exists")
	}

	uid := uuid.NewString()
	if err := p.addAccount(uid, email, password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	a := p.accounts[strings.ToLower(email)]
	p.mu.Unlock()
	return p.startSession(a)
}

func (p *Provider) startSession(a *account) (*ports.ProviderUser, error) {
	now := p.now()
	exp := now.Add(p.sessionDuration)
	token, err := p.mint(a, now, exp)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	u := &ports.ProviderUser{UID: a.uid, Email: a.email, IDToken: token, ExpiresAt: exp}
	p.setCurrent(u)
	c := *u
	return &c, nil
}

func (p *Provider) mint(a *account, now, exp time.Time) (string, error) {
	c := claims{
		Email: a.email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
}

func (p *Provider) IDToken(_ context.Context, u *ports.ProviderUser) (string, error) {
	if u == nil || u.IDToken == "" {
		return "", apperrors.NewProviderError(translate.CodeInvalidCredential, "no id token for user")
	}
	if !p.now().Before(u.ExpiresAt) {
		return "", apperrors.NewProviderError(translate.CodeUserTokenExpired, "id token expired")
	}
	return u.IDToken, nil
}

func (p *Provider) SignOut(_ context.Context) error {
	p.setCurrent(nil)
	return nil
}

func (p *Provider) CurrentUser() *ports.ProviderUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	c := *p.current
	return &c
}

// ResumeSession accepts tokens this provider minted with the same secret.
func (p *Provider) ResumeSession(_ context.Context, token string) (*ports.ProviderUser, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &apperrors.ProviderError{Code: translate.CodeUserTokenExpired, Message: "id token expired", Cause: err}
		}
		return nil, &apperrors.ProviderError{Code: translate.CodeInvalidCredential, Message: "id token rejected", Cause: err}
	}

	p.mu.Lock()
	a, ok := p.accounts[strings.ToLower(c.Email)]
	p.mu.Unlock()
	if !ok || a.uid != c.Subject {
		return nil, apperrors.NewProviderError(translate.CodeUserNotFound, "no account for token")
	}
	if a.disabled {
		return nil, apperrors.NewProviderError(translate.CodeUserDisabled, "account disabled")
	}

	u := &ports.ProviderUser{UID: a.uid, Email: a.email, IDToken: token, ExpiresAt: c.ExpiresAt.Time}
	p.setCurrent(u)
	cp := *u
	return &cp, nil
}

func (p *Provider) OnUserChanged(fn func(*ports.ProviderUser)) func() {
	return p.listeners.Subscribe(fn)
}

func (p *Provider) setCurrent(u *ports.ProviderUser) {
	p.mu.Lock()
	if u == nil {
		p.current = nil
	} else {
		c := *u
		p.current = &c
	}
	p.mu.Unlock()

	var pushed *ports.ProviderUser
	if u != nil {
		c := *u
		pushed = &c
	}
	p.listeners.Publish(pushed)
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}

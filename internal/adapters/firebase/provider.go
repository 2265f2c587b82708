// Package firebase implements ports.IdentityProvider over the Firebase
// Identity Toolkit REST API.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/target/mmk-auth/internal/errors"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/pubsub"
	"github.com/target/mmk-auth/internal/translate"
)

// DefaultBaseURL is the Identity Toolkit v1 endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

const maxErrorBody = 64 << 10

var _ ports.IdentityProvider = (*Provider)(nil)

// Config holds configuration for the Firebase provider.
type Config struct {
	APIKey    string
	ProjectID string
	// BaseURL defaults to DefaultBaseURL. Point it at the auth emulator or a
	// test server to avoid the public endpoint.
	BaseURL string
	// IssuerURL defaults to DefaultIssuerBase + ProjectID.
	IssuerURL string
	// ErrorCodePath is a JMESPath expression locating the error code in
	// failure bodies. Defaults to DefaultErrorCodePath.
	ErrorCodePath string
	// VerifyTokens checks persisted tokens against the issuer's published keys
	// before resuming a session.
	VerifyTokens bool
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
	Logger       *slog.Logger
	Now          func() time.Time
}

// Provider is a Firebase email/password identity backend. It holds the
// current session in memory and reports token expiry through OnUserChanged.
type Provider struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
	decoder  *errorDecoder
	verifier *tokenVerifier

	mu      sync.Mutex
	current *ports.ProviderUser
	expiry  *time.Timer
	closed  bool

	listeners *pubsub.Registry[*ports.ProviderUser]
}

// NewProvider creates a new Firebase provider. No network call is made until
// the first operation.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.VerifyTokens && cfg.ProjectID == "" && cfg.IssuerURL == "" {
		return nil, errors.New("project ID is required to verify tokens")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	decoder, err := newErrorDecoder(cfg.ErrorCodePath)
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	p := &Provider{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		client:    client,
		logger:    logger.With("component", "firebase_provider"),
		now:       now,
		decoder:   decoder,
		listeners: pubsub.NewRegistry[*ports.ProviderUser](),
	}

	if cfg.VerifyTokens {
		issuer := cfg.IssuerURL
		if issuer == "" {
			issuer = DefaultIssuerBase + cfg.ProjectID
		}
		p.verifier = newTokenVerifier(issuer, cfg.ProjectID, client, now)
	}
	return p, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type sessionResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		LocalID  string `json:"localId"`
		Email    string `json:"email"`
		Disabled bool   `json:"disabled"`
	} `json:"users"`
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*ports.ProviderUser, error) {
	return p.passwordSession(ctx, "accounts:signInWithPassword", email, password)
}

func (p *Provider) CreateUser(ctx context.Context, email, password string) (*ports.ProviderUser, error) {
	return p.passwordSession(ctx, "accounts:signUp", email, password)
}

func (p *Provider) passwordSession(ctx context.Context, method, email, password string) (*ports.ProviderUser, error) {
	var resp sessionResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := p.call(ctx, method, req, &resp); err != nil {
		return nil, err
	}
	if resp.LocalID == "" || resp.IDToken == "" {
		return nil, &apperrors.ProviderError{Message: method + " response missing session fields"}
	}

	u := &ports.ProviderUser{
		UID:       resp.LocalID,
		Email:     resp.Email,
		IDToken:   resp.IDToken,
		ExpiresAt: p.expiryOf(resp.IDToken, resp.ExpiresIn),
	}
	p.setCurrent(u)
	return cloneUser(u), nil
}

// IDToken returns the token issued with u's session. Expired tokens are
// reported rather than refreshed.
func (p *Provider) IDToken(_ context.Context, u *ports.ProviderUser) (string, error) {
	if u == nil || u.IDToken == "" {
		return "", &apperrors.ProviderError{Code: translate.CodeInvalidCredential, Message: "no id token for user"}
	}
	if !u.ExpiresAt.IsZero() && !p.now().Before(u.ExpiresAt) {
		return "", &apperrors.ProviderError{Code: translate.CodeUserTokenExpired, Message: "id token expired"}
	}
	return u.IDToken, nil
}

// SignOut drops the in-memory session. The REST API keeps no server session
// for ID tokens, so this never fails.
func (p *Provider) SignOut(_ context.Context) error {
	p.setCurrent(nil)
	return nil
}

func (p *Provider) CurrentUser() *ports.ProviderUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneUser(p.current)
}

// ResumeSession validates a persisted token and makes it the current session.
// The account is looked up so deleted or disabled users are rejected.
func (p *Provider) ResumeSession(ctx context.Context, token string) (*ports.ProviderUser, error) {
	info, err := p.checkToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !info.ExpiresAt.IsZero() && !p.now().Before(info.ExpiresAt) {
		return nil, &apperrors.ProviderError{Code: translate.CodeUserTokenExpired, Message: "id token expired"}
	}

	var resp lookupResponse
	if err := p.call(ctx, "accounts:lookup", lookupRequest{IDToken: token}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Users) == 0 {
		return nil, &apperrors.ProviderError{Code: translate.CodeUserNotFound, Message: "no account for token"}
	}
	acct := resp.Users[0]
	if acct.Disabled {
		return nil, &apperrors.ProviderError{Code: translate.CodeUserDisabled, Message: "account disabled"}
	}

	u := &ports.ProviderUser{
		UID:       firstNonEmpty(acct.LocalID, info.UID),
		Email:     acct.Email,
		IDToken:   token,
		ExpiresAt: info.ExpiresAt,
	}
	p.setCurrent(u)
	return cloneUser(u), nil
}

func (p *Provider) checkToken(ctx context.Context, token string) (tokenInfo, error) {
	if p.verifier != nil {
		return p.verifier.verify(ctx, token)
	}
	return inspectToken(token)
}

// OnUserChanged observes session changes: sign-in, sign-out, resume and
// token expiry. A nil user means the session ended.
func (p *Provider) OnUserChanged(fn func(*ports.ProviderUser)) func() {
	return p.listeners.Subscribe(fn)
}

// Close stops the expiry timer. Later session changes are still applied but
// no further expiry is scheduled.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
}

func (p *Provider) setCurrent(u *ports.ProviderUser) {
	p.mu.Lock()
	p.current = cloneUser(u)
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	if u != nil && !u.ExpiresAt.IsZero() && !p.closed {
		session := p.current
		p.expiry = time.AfterFunc(u.ExpiresAt.Sub(p.now()), func() { p.expire(session) })
	}
	p.mu.Unlock()

	p.listeners.Publish(cloneUser(u))
}

// expire ends session if it is still the current one.
func (p *Provider) expire(session *ports.ProviderUser) {
	p.mu.Lock()
	if p.current != session {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.expiry = nil
	p.mu.Unlock()

	p.logger.Info("id token expired; session ended", "uid", session.UID)
	p.listeners.Publish(nil)
}

// expiryOf prefers the token's exp claim and falls back to expiresIn seconds.
func (p *Provider) expiryOf(token, expiresIn string) time.Time {
	if info, err := inspectToken(token); err == nil && !info.ExpiresAt.IsZero() {
		return info.ExpiresAt
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
		return p.now().Add(time.Duration(secs) * time.Second)
	}
	return time.Time{}
}

func (p *Provider) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	endpoint := p.baseURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &apperrors.ProviderError{
			Code:    translate.CodeNetworkRequestFailed,
			Message: "identity toolkit unreachable",
			Cause:   err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		provErr := p.decoder.decode(resp.StatusCode, raw)
		p.logger.DebugContext(ctx, "identity toolkit error",
			"method", method,
			"status", resp.StatusCode,
			"code", provErr.Code,
		)
		return provErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperrors.ProviderError{Message: "decode " + method + " response", Cause: err}
	}
	return nil
}

func cloneUser(u *ports.ProviderUser) *ports.ProviderUser {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

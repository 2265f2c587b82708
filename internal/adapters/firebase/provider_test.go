package firebase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-auth/internal/errors"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/translate"
)

const (
	testAPIKey  = "AIzaTestKey"
	testProject = "demo-project"
	testKeyID   = "test-key"
)

type account struct {
	uid      string
	email    string
	password string
	disabled bool
}

// fakeToolkit is an in-process stand-in for the Identity Toolkit REST API
// plus the token issuer's discovery and JWKS endpoints.
type fakeToolkit struct {
	t      *testing.T
	srv    *httptest.Server
	key    *rsa.PrivateKey
	ttl    time.Duration
	issuer string

	mu        sync.Mutex
	accounts  map[string]*account
	discovery atomic.Int32
	lastKey   string
}

func newFakeToolkit(t *testing.T) *fakeToolkit {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeToolkit{t: t, key: key, ttl: time.Hour, accounts: map[string]*account{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts:signInWithPassword", f.signIn)
	mux.HandleFunc("/v1/accounts:signUp", f.signUp)
	mux.HandleFunc("/v1/accounts:lookup", f.lookup)
	mux.HandleFunc("/issuer/.well-known/openid-configuration", f.discoveryDoc)
	mux.HandleFunc("/jwks", f.jwks)
	f.srv = httptest.NewServer(mux)
	f.issuer = f.srv.URL + "/issuer"
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeToolkit) addAccount(uid, email, password string) *account {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &account{uid: uid, email: email, password: password}
	f.accounts[email] = a
	return a
}

func (f *fakeToolkit) token(uid, email string, exp time.Time) string {
	claims := tokenClaims{
		Email:  email,
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    f.issuer,
			Subject:   uid,
			Audience:  jwt.ClaimStrings{testProject},
			IssuedAt:  jwt.NewNumericDate(exp.Add(-f.ttl)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(f.key)
	require.NoError(f.t, err)
	return signed
}

func (f *fakeToolkit) fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func (f *fakeToolkit) session(w http.ResponseWriter, a *account) {
	_ = json.NewEncoder(w).Encode(sessionResponse{
		LocalID:      a.uid,
		Email:        a.email,
		IDToken:      f.token(a.uid, a.email, time.Now().Add(f.ttl)),
		RefreshToken: "refresh",
		ExpiresIn:    "3600",
	})
}

func (f *fakeToolkit) signIn(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastKey = r.URL.Query().Get("key")
	f.mu.Unlock()

	var req passwordRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	assert.True(f.t, req.ReturnSecureToken)

	f.mu.Lock()
	a, ok := f.accounts[req.Email]
	f.mu.Unlock()
	switch {
	case !ok:
		f.fail(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
	case a.password != req.Password:
		f.fail(w, http.StatusBadRequest, "INVALID_PASSWORD")
	case a.disabled:
		f.fail(w, http.StatusBadRequest, "USER_DISABLED : The user account has been disabled by an administrator.")
	default:
		f.session(w, a)
	}
}

func (f *fakeToolkit) signUp(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	_, exists := f.accounts[req.Email]
	f.mu.Unlock()
	switch {
	case exists:
		f.fail(w, http.StatusBadRequest, "EMAIL_EXISTS")
	case len(req.Password) < 6:
		f.fail(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
	default:
		f.session(w, f.addAccount("uid-"+req.Email, req.Email, req.Password))
	}
}

func (f *fakeToolkit) lookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	info, err := inspectToken(req.IDToken)
	if err != nil {
		f.fail(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	resp := map[string]any{}
	for _, a := range f.accounts {
		if a.uid == info.UID {
			resp["users"] = []map[string]any{{"localId": a.uid, "email": a.email, "disabled": a.disabled}}
		}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeToolkit) discoveryDoc(w http.ResponseWriter, _ *http.Request) {
	f.discovery.Add(1)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                f.issuer,
		"jwks_uri":                              f.srv.URL + "/jwks",
		"authorization_endpoint":                f.srv.URL + "/authorize",
		"response_types_supported":              []string{"id_token"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeToolkit) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := f.key.PublicKey
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func newTestProvider(t *testing.T, f *fakeToolkit, mutate func(*Config)) *Provider {
	t.Helper()
	cfg := Config{
		APIKey:    testAPIKey,
		ProjectID: testProject,
		BaseURL:   f.srv.URL + "/v1/",
		IssuerURL: f.issuer,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.CodeOf(err))
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.Error(t, err)

	_, err = NewProvider(Config{APIKey: testAPIKey, VerifyTokens: true})
	assert.Error(t, err)

	_, err = NewProvider(Config{APIKey: testAPIKey, ErrorCodePath: "error.["})
	assert.Error(t, err)

	p, err := NewProvider(Config{APIKey: testAPIKey})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, p.baseURL)
	assert.Nil(t, p.verifier)
}

func TestSignInWithPassword(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "a@b.co", "Passw0rd!")
	p := newTestProvider(t, f, nil)

	var pushed []*ports.ProviderUser
	stop := p.OnUserChanged(func(u *ports.ProviderUser) { pushed = append(pushed, u) })
	defer stop()

	u, err := p.SignInWithPassword(context.Background(), "a@b.co", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", u.UID)
	assert.Equal(t, "a@b.co", u.Email)
	assert.NotEmpty(t, u.IDToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), u.ExpiresAt, 2*time.Second)
	assert.Equal(t, testAPIKey, f.lastKey)

	cur := p.CurrentUser()
	require.NotNil(t, cur)
	assert.Equal(t, "uid-1", cur.UID)

	tok, err := p.IDToken(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, u.IDToken, tok)

	require.Len(t, pushed, 1)
	assert.Equal(t, "uid-1", pushed[0].UID)
}

func TestSignInWithPassword_ErrorCodes(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "a@b.co", "Passw0rd!")
	f.addAccount("uid-2", "off@b.co", "Passw0rd!").disabled = true
	p := newTestProvider(t, f, nil)
	ctx := context.Background()

	_, err := p.SignInWithPassword(ctx, "nobody@b.co", "x")
	requireCode(t, err, translate.CodeUserNotFound)

	_, err = p.SignInWithPassword(ctx, "a@b.co", "wrong")
	requireCode(t, err, translate.CodeWrongPassword)

	_, err = p.SignInWithPassword(ctx, "off@b.co", "Passw0rd!")
	requireCode(t, err, translate.CodeUserDisabled)
	var provErr *apperrors.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "The user account has been disabled by an administrator.", provErr.Message)

	assert.Nil(t, p.CurrentUser())
}

func TestCreateUser(t *testing.T) {
	f := newFakeToolkit(t)
	p := newTestProvider(t, f, nil)
	ctx := context.Background()

	u, err := p.CreateUser(ctx, "new@b.co", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "uid-new@b.co", u.UID)

	_, err = p.CreateUser(ctx, "new@b.co", "Passw0rd!")
	requireCode(t, err, translate.CodeEmailAlreadyInUse)

	_, err = p.CreateUser(ctx, "weak@b.co", "123")
	requireCode(t, err, translate.CodeWeakPassword)
}

func TestNetworkFailure(t *testing.T) {
	f := newFakeToolkit(t)
	p := newTestProvider(t, f, nil)
	f.srv.Close()

	_, err := p.SignInWithPassword(context.Background(), "a@b.co", "x")
	requireCode(t, err, translate.CodeNetworkRequestFailed)
}

func TestSignOut_ClearsAndNotifies(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "a@b.co", "Passw0rd!")
	p := newTestProvider(t, f, nil)

	_, err := p.SignInWithPassword(context.Background(), "a@b.co", "Passw0rd!")
	require.NoError(t, err)

	var last *ports.ProviderUser
	var calls int
	stop := p.OnUserChanged(func(u *ports.ProviderUser) { last, calls = u, calls+1 })
	require.NoError(t, p.SignOut(context.Background()))
	stop()

	assert.Nil(t, p.CurrentUser())
	assert.Equal(t, 1, calls)
	assert.Nil(t, last)
}

func TestIDToken_Rejections(t *testing.T) {
	p, err := NewProvider(Config{APIKey: testAPIKey})
	require.NoError(t, err)

	_, err = p.IDToken(context.Background(), nil)
	requireCode(t, err, translate.CodeInvalidCredential)

	_, err = p.IDToken(context.Background(), &ports.ProviderUser{IDToken: "t", ExpiresAt: time.Now().Add(-time.Minute)})
	requireCode(t, err, translate.CodeUserTokenExpired)
}

func TestResumeSession_Unverified(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "", "Passw0rd!")
	p := newTestProvider(t, f, nil)
	ctx := context.Background()

	u, err := p.ResumeSession(ctx, f.token("uid-1", "", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "uid-1", u.UID)
	assert.Empty(t, u.Email)
	assert.NotNil(t, p.CurrentUser())

	_, err = p.ResumeSession(ctx, f.token("uid-1", "", time.Now().Add(-time.Minute)))
	requireCode(t, err, translate.CodeUserTokenExpired)

	_, err = p.ResumeSession(ctx, f.token("ghost", "", time.Now().Add(time.Hour)))
	requireCode(t, err, translate.CodeUserNotFound)

	_, err = p.ResumeSession(ctx, "not-a-jwt")
	requireCode(t, err, translate.CodeInvalidCredential)
}

func TestResumeSession_DisabledAccount(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "a@b.co", "pw").disabled = true
	p := newTestProvider(t, f, nil)

	_, err := p.ResumeSession(context.Background(), f.token("uid-1", "a@b.co", time.Now().Add(time.Hour)))
	requireCode(t, err, translate.CodeUserDisabled)
}

func TestResumeSession_VerifiedTokens(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "a@b.co", "pw")
	p := newTestProvider(t, f, func(c *Config) { c.VerifyTokens = true })
	ctx := context.Background()

	u, err := p.ResumeSession(ctx, f.token("uid-1", "a@b.co", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "uid-1", u.UID)

	_, err = p.ResumeSession(ctx, f.token("uid-1", "a@b.co", time.Now().Add(-time.Minute)))
	requireCode(t, err, translate.CodeUserTokenExpired)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    f.issuer,
		Subject:   "uid-1",
		Audience:  jwt.ClaimStrings{testProject},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	forged.Header["kid"] = testKeyID
	raw, err := forged.SignedString(other)
	require.NoError(t, err)
	_, err = p.ResumeSession(ctx, raw)
	requireCode(t, err, translate.CodeInvalidCredential)

	assert.Equal(t, int32(1), f.discovery.Load(), "discovery runs once")
}

func TestVerifier_ConcurrentFirstUseSharesDiscovery(t *testing.T) {
	f := newFakeToolkit(t)
	v := newTokenVerifier(f.issuer, testProject, f.srv.Client(), time.Now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, f.discovery.Load(), int32(8))
	assert.GreaterOrEqual(t, f.discovery.Load(), int32(1))

	before := f.discovery.Load()
	_, err := v.get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, f.discovery.Load(), "cached verifier is reused")
}

func TestVerifier_DiscoveryFailure(t *testing.T) {
	f := newFakeToolkit(t)
	v := newTokenVerifier(f.srv.URL+"/missing", testProject, f.srv.Client(), time.Now)

	_, err := v.verify(context.Background(), f.token("uid-1", "", time.Now().Add(time.Hour)))
	requireCode(t, err, translate.CodeNetworkRequestFailed)
}

func TestExpiry_PushesAbsentUser(t *testing.T) {
	f := newFakeToolkit(t)
	f.addAccount("uid-1", "a@b.co", "Passw0rd!")
	// Shift the clock so the hour-long token is about to lapse.
	p := newTestProvider(t, f, func(c *Config) {
		c.Now = func() time.Time { return time.Now().Add(time.Hour - 100*time.Millisecond) }
	})

	ended := make(chan struct{})
	stop := p.OnUserChanged(func(u *ports.ProviderUser) {
		if u == nil {
			close(ended)
		}
	})
	defer stop()

	_, err := p.SignInWithPassword(context.Background(), "a@b.co", "Passw0rd!")
	require.NoError(t, err)

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("expiry was not reported")
	}
	assert.Nil(t, p.CurrentUser())
}

func TestErrorDecoder(t *testing.T) {
	d, err := newErrorDecoder("")
	require.NoError(t, err)

	e := d.decode(400, []byte(`{"error":{"message":"TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled"}}`))
	assert.Equal(t, translate.CodeTooManyRequests, e.Code)
	assert.Equal(t, "Access disabled", e.Message)

	e = d.decode(400, []byte(`{"error":{"message":"SOMETHING_NEW"}}`))
	assert.Equal(t, "something-new", e.Code)

	e = d.decode(500, []byte(`<html>oops</html>`))
	assert.Empty(t, e.Code)
	assert.True(t, strings.Contains(e.Message, "500"))

	custom, err := newErrorDecoder("details[0].reason")
	require.NoError(t, err)
	e = custom.decode(400, []byte(`{"details":[{"reason":"auth/invalid-email"}]}`))
	assert.Equal(t, translate.CodeInvalidEmail, e.Code)
}

package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/target/mmk-auth/internal/errors"
	"github.com/target/mmk-auth/internal/translate"
)

// DefaultIssuerBase is prefixed to the project id to form the token issuer.
const DefaultIssuerBase = "https://securetoken.google.com/"

// tokenClaims is the subset of ID token claims the adapter reads.
type tokenClaims struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// tokenInfo is what the adapter learns from an ID token.
type tokenInfo struct {
	UID       string
	Email     string
	ExpiresAt time.Time
}

// tokenVerifier checks ID token signatures through OIDC discovery of the
// issuer. Discovery happens on first use and concurrent first callers share
// a single fetch.
type tokenVerifier struct {
	issuer   string
	audience string
	client   *http.Client
	now      func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	verifier *gooidc.IDTokenVerifier
}

func newTokenVerifier(issuer, audience string, client *http.Client, now func() time.Time) *tokenVerifier {
	return &tokenVerifier{issuer: issuer, audience: audience, client: client, now: now}
}

func (v *tokenVerifier) get(ctx context.Context) (*gooidc.IDTokenVerifier, error) {
	v.mu.Lock()
	cached := v.verifier
	v.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	res, err, _ := v.group.Do("verifier", func() (any, error) {
		// The remote key set keeps this context for later JWKS refreshes.
		discoveryCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, v.client)
		op, err := gooidc.NewProvider(discoveryCtx, v.issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc new provider: %w", err)
		}
		ver := op.Verifier(&gooidc.Config{ClientID: v.audience, Now: v.now})

		v.mu.Lock()
		v.verifier = ver
		v.mu.Unlock()
		return ver, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*gooidc.IDTokenVerifier), nil
}

// verify checks signature, issuer, audience and expiry of raw.
func (v *tokenVerifier) verify(ctx context.Context, raw string) (tokenInfo, error) {
	ver, err := v.get(ctx)
	if err != nil {
		return tokenInfo{}, &apperrors.ProviderError{
			Code:    translate.CodeNetworkRequestFailed,
			Message: "token issuer discovery failed",
			Cause:   err,
		}
	}

	idTok, err := ver.Verify(ctx, raw)
	if err != nil {
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return tokenInfo{}, &apperrors.ProviderError{Code: translate.CodeUserTokenExpired, Message: "id token expired", Cause: err}
		}
		return tokenInfo{}, &apperrors.ProviderError{Code: translate.CodeInvalidCredential, Message: "id token rejected", Cause: err}
	}

	var claims tokenClaims
	if err := idTok.Claims(&claims); err != nil {
		return tokenInfo{}, &apperrors.ProviderError{Code: translate.CodeInvalidCredential, Message: "id token claims unreadable", Cause: err}
	}
	return tokenInfo{
		UID:       firstNonEmpty(claims.UserID, idTok.Subject),
		Email:     claims.Email,
		ExpiresAt: idTok.Expiry,
	}, nil
}

// inspectToken reads claims without verifying the signature. It is used for
// expiry bookkeeping on tokens the backend just issued, and for resume when
// verification is disabled.
func inspectToken(raw string) (tokenInfo, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return tokenInfo{}, &apperrors.ProviderError{Code: translate.CodeInvalidCredential, Message: "malformed id token", Cause: err}
	}
	info := tokenInfo{
		UID:   firstNonEmpty(claims.UserID, claims.Subject),
		Email: claims.Email,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

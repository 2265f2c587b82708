package firebase

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	apperrors "github.com/target/mmk-auth/internal/errors"
	"github.com/target/mmk-auth/internal/translate"
)

// DefaultErrorCodePath locates the code inside an Identity Toolkit error body:
// {"error":{"code":400,"message":"EMAIL_NOT_FOUND : detail"}}.
const DefaultErrorCodePath = "error.message"

// restCodes maps Identity Toolkit REST codes onto the neutral vocabulary.
var restCodes = map[string]string{
	"API_KEY_INVALID":             translate.CodeInvalidAPIKey,
	"INVALID_API_KEY":             translate.CodeInvalidAPIKey,
	"INVALID_EMAIL":               translate.CodeInvalidEmail,
	"EMAIL_NOT_FOUND":             translate.CodeUserNotFound,
	"USER_NOT_FOUND":              translate.CodeUserNotFound,
	"INVALID_PASSWORD":            translate.CodeWrongPassword,
	"MISSING_PASSWORD":            translate.CodeMissingPassword,
	"EMAIL_EXISTS":                translate.CodeEmailAlreadyInUse,
	"WEAK_PASSWORD":               translate.CodeWeakPassword,
	"OPERATION_NOT_ALLOWED":       translate.CodeOperationNotAllowed,
	"PASSWORD_LOGIN_DISABLED":     translate.CodeOperationNotAllowed,
	"TOO_MANY_ATTEMPTS_TRY_LATER": translate.CodeTooManyRequests,
	"USER_DISABLED":               translate.CodeUserDisabled,
	"INVALID_LOGIN_CREDENTIALS":   translate.CodeInvalidCredential,
	"INVALID_ID_TOKEN":            translate.CodeInvalidCredential,
	"TOKEN_EXPIRED":               translate.CodeUserTokenExpired,
	"PROJECT_NOT_FOUND":           translate.CodeAppDeleted,
	"UNAUTHORIZED_DOMAIN":         translate.CodeUnauthorizedDomain,
}

// errorDecoder extracts backend codes from error bodies with a compiled
// JMESPath expression.
type errorDecoder struct {
	search func(data any) (any, error)
}

func newErrorDecoder(path string) (*errorDecoder, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultErrorCodePath
	}
	expr, err := jmespath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile error code path %q: %w", path, err)
	}
	return &errorDecoder{search: expr.Search}, nil
}

// decode turns a non-2xx response body into a ProviderError. Codes without a
// known mapping are passed through lower-cased with dashes so the translator's
// fallback message still names them.
func (d *errorDecoder) decode(status int, body []byte) *apperrors.ProviderError {
	raw := d.rawCode(body)
	if raw == "" {
		return &apperrors.ProviderError{Message: fmt.Sprintf("identity toolkit returned HTTP %d", status)}
	}

	code, detail, _ := strings.Cut(raw, " : ")
	code = strings.TrimSpace(code)
	return &apperrors.ProviderError{Code: normalizeCode(code), Message: strings.TrimSpace(firstNonEmpty(detail, raw))}
}

func (d *errorDecoder) rawCode(body []byte) string {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	v, err := d.search(data)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func normalizeCode(code string) string {
	if mapped, ok := restCodes[code]; ok {
		return mapped
	}
	// Client SDK style codes ("auth/invalid-email") drop the vendor prefix.
	if rest, ok := strings.CutPrefix(code, "auth/"); ok {
		return rest
	}
	return strings.ReplaceAll(strings.ToLower(code), "_", "-")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

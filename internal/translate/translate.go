// Package translate maps identity-backend error codes to stable, user-facing
// messages. The code table is configuration: backends can extend it with
// their own vocabulary without touching the auth service or session manager.
package translate

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	apperrors "github.com/target/mmk-auth/internal/errors"
)

// Backend-neutral error codes understood by the default table.
const (
	CodeInvalidAPIKey        = "invalid-api-key"
	CodeInvalidEmail         = "invalid-email"
	CodeUserNotFound         = "user-not-found"
	CodeWrongPassword        = "wrong-password"
	CodeMissingPassword      = "missing-password"
	CodeEmailAlreadyInUse    = "email-already-in-use"
	CodeWeakPassword         = "weak-password"
	CodeOperationNotAllowed  = "operation-not-allowed"
	CodeTooManyRequests      = "too-many-requests"
	CodeUserDisabled         = "user-disabled"
	CodeInvalidCredential    = "invalid-credential"
	CodeNetworkRequestFailed = "network-request-failed"
	CodeAppDeleted           = "app-deleted"
	CodeUnauthorizedDomain   = "unauthorized-domain"
	CodeUserTokenExpired     = "user-token-expired"
)

// Messages maps an exact, case-sensitive error code to its display message.
type Messages map[string]string

// DefaultMessages returns a fresh copy of the built-in table.
func DefaultMessages() Messages {
	return Messages{
		CodeInvalidAPIKey:        "Invalid provider API key. Check environment variables and restart the app.",
		CodeInvalidEmail:         "The email address is invalid.",
		CodeUserNotFound:         "Invalid credentials. Please check your email and password.",
		CodeWrongPassword:        "Invalid credentials. Please check your email and password.",
		CodeMissingPassword:      "Please enter your password.",
		CodeEmailAlreadyInUse:    "This email is already registered. Please sign in or use a different email.",
		CodeWeakPassword:         "Password is too weak. Please choose a stronger password.",
		CodeOperationNotAllowed:  "Email/password sign-in is disabled for this project. Enable it in the provider console.",
		CodeTooManyRequests:      "Too many attempts. Please wait a moment and try again.",
		CodeUserDisabled:         "This account has been disabled.",
		CodeInvalidCredential:    "Invalid credentials. Please try again.",
		CodeNetworkRequestFailed: "Network error. Please check your internet connection and try again.",
		CodeAppDeleted:           "Project configuration error. Check your provider setup.",
		CodeUnauthorizedDomain:   "This domain is not authorized. Add it to the provider's authorized domains.",
		CodeUserTokenExpired:     "Your session has expired. Please sign in again.",
	}
}

// Options configures a Translator.
type Options struct {
	// Extra entries are merged over the default table. Defaults cannot be removed.
	Extra Messages
	// Debug appends the raw provider message to fallback translations.
	Debug  bool
	Logger *slog.Logger
}

// Translator converts backend failures into display messages.
// It is safe for concurrent use; the table is never mutated after construction.
type Translator struct {
	messages Messages
	debug    bool
	logger   *slog.Logger
}

// New builds a Translator over the default table plus opts.Extra.
func New(opts Options) *Translator {
	messages := DefaultMessages()
	maps.Copy(messages, opts.Extra)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		messages: messages,
		debug:    opts.Debug,
		logger:   logger,
	}
}

// Extend returns a new Translator with additional entries layered on top.
func (t *Translator) Extend(extra Messages) *Translator {
	messages := maps.Clone(t.messages)
	maps.Copy(messages, extra)
	return &Translator{messages: messages, debug: t.debug, logger: t.logger}
}

// Lookup returns the mapped message for code, if any.
func (t *Translator) Lookup(code string) (string, bool) {
	msg, ok := t.messages[code]
	return msg, ok
}

// Translate is total: every (code, message) pair yields a display string.
func (t *Translator) Translate(code, message string) string {
	if msg, ok := t.messages[code]; ok && code != "" {
		return msg
	}
	return t.fallback(code, message)
}

func (t *Translator) fallback(code, message string) string {
	prefix := "Authentication failed"
	if code != "" {
		prefix = fmt.Sprintf("Authentication failed (%s)", code)
	}
	if t.debug && message != "" {
		return prefix + ": " + message
	}
	return prefix + ". Please try again."
}

// Error classifies err and returns an AuthError carrying the display message.
// Errors that are already classified pass through unchanged.
func (t *Translator) Error(err error) *apperrors.AuthError {
	if err == nil {
		return nil
	}

	var authErr *apperrors.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	var code, raw string
	var provErr *apperrors.ProviderError
	if errors.As(err, &provErr) {
		code, raw = provErr.Code, provErr.Message
	} else {
		raw = err.Error()
	}

	t.logger.Debug("auth provider error", "code", code, "message", raw, "error", err)

	msg := t.Translate(code, raw)
	if _, known := t.messages[code]; known && code != "" {
		return apperrors.Provider(code, msg, err)
	}
	return apperrors.Unknown(code, msg, err)
}

package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an authentication failure.
type Kind string

const (
	// KindValidation is a client-side rejection raised before any remote call.
	KindValidation Kind = "validation"
	// KindProvider is a failure the identity backend classified with a known code.
	KindProvider Kind = "provider"
	// KindUnknown is a backend failure without a recognized code.
	KindUnknown Kind = "unknown"
	// KindStorage is a failure of the local credential store.
	KindStorage Kind = "storage"
)

// AuthError is the classified failure surfaced by the auth service.
// Error() returns the user-facing message only; the raw cause stays reachable
// through Unwrap for logging.
type AuthError struct {
	// Kind categorizes the failure
	Kind Kind
	// Code is the backend code when one was reported (optional)
	Code string
	// Message is the translated, user-facing text
	Message string
	// Field names the offending input for validation errors (optional)
	Field string
	// Cause is the underlying error (optional)
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Validation creates a field-level validation error.
func Validation(field, message string) *AuthError {
	return &AuthError{
		Kind:    KindValidation,
		Message: message,
		Field:   field,
	}
}

// Provider creates a classified backend error.
func Provider(code, message string, cause error) *AuthError {
	return &AuthError{
		Kind:    KindProvider,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Unknown creates an unclassified backend error.
func Unknown(code, message string, cause error) *AuthError {
	return &AuthError{
		Kind:    KindUnknown,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Storage creates a credential store error.
func Storage(message string, cause error) *AuthError {
	return &AuthError{
		Kind:    KindStorage,
		Message: message,
		Cause:   cause,
	}
}

func isKind(err error, kind Kind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return isKind(err, KindValidation)
}

// IsProvider checks if an error is a classified backend error.
func IsProvider(err error) bool {
	return isKind(err, KindProvider)
}

// IsUnknown checks if an error is an unclassified backend error.
func IsUnknown(err error) bool {
	return isKind(err, KindUnknown)
}

// IsStorage checks if an error came from the credential store.
func IsStorage(err error) bool {
	return isKind(err, KindStorage)
}

// CodeOf returns the backend code carried by err, or "".
func CodeOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Code != "" {
		return authErr.Code
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code
	}
	return ""
}

// ProviderError is the raw failure shape returned by identity backend adapters.
// Code uses the backend-neutral vocabulary (e.g. "invalid-email"); it is empty
// when the backend did not report one.
type ProviderError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	case e.Code != "":
		return "provider error " + e.Code
	case e.Message != "":
		return "provider error: " + e.Message
	}
	if e.Cause != nil {
		return "provider error: " + e.Cause.Error()
	}
	return "provider error"
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a raw backend error.
func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

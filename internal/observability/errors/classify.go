package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/mmk-auth/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Auth errors report their kind; anything else reports the innermost
// concrete type name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var authErr *apperrors.AuthError
	if goerrors.As(err, &authErr) {
		return string(authErr.Kind)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}

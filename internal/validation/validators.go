// Package validation holds the client-side credential checks that run before
// any request reaches the auth service. They are a fast-fail gate; backends
// still apply their own policy.
package validation

import (
	"errors"
	"regexp"
	"unicode/utf8"

	apperrors "github.com/target/mmk-auth/internal/errors"
)

// Field names used on validation errors.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Field-level messages shown next to the offending input.
const (
	MsgInvalidEmail = "Invalid email"
	MsgWeakPassword = "Password too weak"
)

// MinPasswordLength is the shortest password ValidatePasswordStrength accepts.
const MinPasswordLength = 8

// emailPattern requires local@domain.tld with at least one dot after the @.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validator is a function that validates a string value and returns an error message if invalid.
type Validator func(v string) string

// IsValidEmail reports whether s has a conventional local@domain.tld shape.
// A bare "a@b" is rejected.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidatePasswordStrength reports whether s is at least MinPasswordLength
// characters and contains an uppercase letter, a lowercase letter, a digit and
// a symbol outside [A-Za-z0-9]. Each condition is independently required.
func ValidatePasswordStrength(s string) bool {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// Email validates the email shape.
func Email(message string) Validator {
	return func(v string) string {
		if !IsValidEmail(v) {
			return message
		}
		return ""
	}
}

// StrongPassword validates password strength.
func StrongPassword(message string) Validator {
	return func(v string) string {
		if !ValidatePasswordStrength(v) {
			return message
		}
		return ""
	}
}

// CheckSignIn gates a sign-in submission. Only the email shape is checked;
// the backend owns password verification.
func CheckSignIn(email, _ string) error {
	return check(
		fieldCheck{FieldEmail, email, Email(MsgInvalidEmail)},
	)
}

// CheckSignUp gates a sign-up submission on email shape and password strength.
func CheckSignUp(email, password string) error {
	return check(
		fieldCheck{FieldEmail, email, Email(MsgInvalidEmail)},
		fieldCheck{FieldPassword, password, StrongPassword(MsgWeakPassword)},
	)
}

// FieldMessages flattens the validation errors in err into field -> message.
// It returns nil when err carries no validation errors.
func FieldMessages(err error) map[string]string {
	if err == nil {
		return nil
	}
	var out map[string]string
	collect(err, func(ae *apperrors.AuthError) {
		if ae.Kind != apperrors.KindValidation {
			return
		}
		if out == nil {
			out = make(map[string]string)
		}
		if _, seen := out[ae.Field]; !seen {
			out[ae.Field] = ae.Message
		}
	})
	return out
}

type fieldCheck struct {
	field    string
	value    string
	validate Validator
}

func check(checks ...fieldCheck) error {
	var errs []error
	for _, c := range checks {
		if msg := c.validate(c.value); msg != "" {
			errs = append(errs, apperrors.Validation(c.field, msg))
		}
	}
	return errors.Join(errs...)
}

func collect(err error, fn func(*apperrors.AuthError)) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collect(e, fn)
		}
		return
	}
	var ae *apperrors.AuthError
	if errors.As(err, &ae) {
		fn(ae)
	}
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AuthMode represents the identity backend used by the auth service.
type AuthMode string

const (
	// AuthModeFirebase talks to the Firebase Identity Toolkit REST API.
	AuthModeFirebase AuthMode = "firebase"
	// AuthModeMock uses the in-process dev identity backend (for development only).
	AuthModeMock AuthMode = "mock"
)

// firebaseAPIKeyPrefix is shared by every Firebase Web API key.
const firebaseAPIKeyPrefix = "AIza"

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "firebase", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: firebase, mock)", v)
	}
}

// FirebaseConfig mirrors the Firebase web app configuration.
type FirebaseConfig struct {
	APIKey            string `env:"API_KEY"`
	AuthDomain        string `env:"AUTH_DOMAIN"`
	ProjectID         string `env:"PROJECT_ID"`
	StorageBucket     string `env:"STORAGE_BUCKET"`
	MessagingSenderID string `env:"MESSAGING_SENDER_ID"`
	AppID             string `env:"APP_ID"`
	MeasurementID     string `env:"MEASUREMENT_ID"`

	// BaseURL overrides the Identity Toolkit endpoint (emulator, tests).
	BaseURL string `env:"BASE_URL"`
	// ErrorCodePath is a JMESPath expression locating the error code in REST error bodies.
	ErrorCodePath string `env:"ERROR_CODE_PATH" envDefault:"error.message"`
	// VerifyTokens checks ID token signatures against Google's published keys.
	VerifyTokens bool `env:"VERIFY_TOKENS" envDefault:"true"`
}

func (c *FirebaseConfig) sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.AuthDomain = strings.TrimSpace(c.AuthDomain)
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.StorageBucket = strings.TrimSpace(c.StorageBucket)
	c.MessagingSenderID = strings.TrimSpace(c.MessagingSenderID)
	c.AppID = strings.TrimSpace(c.AppID)
	c.MeasurementID = strings.TrimSpace(c.MeasurementID)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.ErrorCodePath = strings.TrimSpace(c.ErrorCodePath); c.ErrorCodePath == "" {
		c.ErrorCodePath = "error.message"
	}
}

// Validate enforces the fields the web SDK refuses to start without.
func (c FirebaseConfig) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("missing FIREBASE_API_KEY"))
	} else if !strings.HasPrefix(c.APIKey, firebaseAPIKeyPrefix) {
		errs = append(errs, errors.New("invalid FIREBASE_API_KEY format: use the Web API key from the Firebase console"))
	}
	if c.AppID == "" {
		errs = append(errs, errors.New("missing FIREBASE_APP_ID"))
	}
	if c.VerifyTokens && c.ProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required when FIREBASE_VERIFY_TOKENS=true"))
	}
	return errors.Join(errs...)
}

// LogValue masks secrets so the config can be logged while diagnosing 400s.
func (c FirebaseConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_key", mask(c.APIKey)),
		slog.String("auth_domain", orMissing(c.AuthDomain)),
		slog.String("project_id", orMissing(c.ProjectID)),
		slog.String("app_id", mask(c.AppID)),
	)
}

func mask(v string) string {
	switch {
	case v == "":
		return "missing"
	case len(v) <= 8:
		return "****"
	default:
		return v[:4] + "..." + v[len(v)-4:]
	}
}

func orMissing(v string) string {
	if v == "" {
		return "missing"
	}
	return v
}

// DevAuthConfig controls the mock/dev identity backend.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID          string        `env:"USER_ID"          envDefault:"dev-user"`
	Email           string        `env:"EMAIL"            envDefault:"dev@example.com"`
	Password        string        `env:"PASSWORD"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
	Secret          string        `env:"SECRET"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"firebase"`

	// Firebase configuration (used when Mode=firebase).
	Firebase FirebaseConfig `envPrefix:"FIREBASE_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims provider configuration.
func (c *AuthConfig) Sanitize() {
	c.Firebase.sanitize()
	c.DevAuth.Email = strings.TrimSpace(c.DevAuth.Email)
	if c.DevAuth.SessionDuration <= 0 {
		c.DevAuth.SessionDuration = 8 * time.Hour
	}
}

// Validate checks the settings of the selected backend only.
func (c AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeFirebase:
		return c.Firebase.Validate()
	case AuthModeMock:
		return nil
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Mode)
	}
}

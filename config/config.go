package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: identity backend configuration
//   - storage.go: credential store and Redis configuration
//   - observability.go: metrics sinks
//   - translation.go: error message overrides
type AppConfig struct {
	// IsDev controls development mode behavior (debug translations, masked config logging).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Credential storage
	Credentials CredentialsConfig `envPrefix:"CREDENTIALS_"`
	Redis       RedisConfig       `envPrefix:"REDIS_"`

	// Observability configuration
	Observability ObservabilityConfig

	Translation TranslationConfig `envPrefix:"TRANSLATION_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.Credentials.Sanitize()
	c.Observability.Sanitize()
	c.Translation.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// Validate reports every configuration problem that would prevent startup.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}
	if err := c.Credentials.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("credentials: %w", err))
	}
	if c.Auth.Mode == AuthModeMock && !c.IsDev {
		errs = append(errs, errors.New("auth: AUTH_MODE=mock requires DEV=true"))
	}
	return errors.Join(errs...)
}

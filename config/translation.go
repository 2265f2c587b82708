package config

import "strings"

// TranslationConfig controls how provider error codes become display messages.
type TranslationConfig struct {
	// File is an optional YAML map of code to message merged over the defaults.
	File string `env:"FILE"`
	// Debug appends the raw provider message to fallback translations.
	// Forced on in dev mode by bootstrap.
	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Sanitize trims the override path.
func (c *TranslationConfig) Sanitize() {
	c.File = strings.TrimSpace(c.File)
}

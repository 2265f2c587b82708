package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/target/mmk-auth/config"
	"github.com/target/mmk-auth/internal/translate"
)

// TranslatorOptions configures LoadTranslator.
type TranslatorOptions struct {
	Config config.TranslationConfig
	IsDev  bool
	Logger *slog.Logger
}

// LoadTranslator builds the error translator, merging the optional YAML
// override file over the default table. The file is a flat map:
//
//	user-not-found: "We could not find that account."
//	quota-exceeded: "Too many sign-ups today."
func LoadTranslator(opts TranslatorOptions) (*translate.Translator, error) {
	extra, err := readMessages(opts.Config.File)
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil && len(extra) > 0 {
		opts.Logger.Info("loaded translation overrides", "file", opts.Config.File, "entries", len(extra))
	}
	return translate.New(translate.Options{
		Extra:  extra,
		Debug:  opts.Config.Debug || opts.IsDev,
		Logger: opts.Logger,
	}), nil
}

func readMessages(path string) (translate.Messages, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read translation file: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse translation file %s: %w", path, err)
	}

	messages := make(translate.Messages, len(raw))
	for code, msg := range raw {
		code = strings.TrimSpace(code)
		msg = strings.TrimSpace(msg)
		if code == "" || msg == "" {
			return nil, fmt.Errorf("translation file %s: empty code or message for %q", path, code)
		}
		messages[code] = msg
	}
	return messages, nil
}

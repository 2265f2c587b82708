package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-auth/config"
	redisadapter "github.com/target/mmk-auth/internal/adapters/redis"
	"github.com/target/mmk-auth/internal/adapters/sqlite"
	"github.com/target/mmk-auth/internal/cryptoutil"
	"github.com/target/mmk-auth/internal/ports"
)

// StorageOptions contains configuration for the credential store.
type StorageOptions struct {
	Credentials config.CredentialsConfig
	Redis       config.RedisConfig
	Logger      *slog.Logger
}

// CredentialStore is a ports.CredentialStore plus the release hook of whatever
// backend it holds open.
type CredentialStore struct {
	ports.CredentialStore
	close func() error
}

// Close releases the backend connection.
func (c *CredentialStore) Close() error {
	if c == nil || c.close == nil {
		return nil
	}
	return c.close()
}

// CreateSealer builds the value sealer from the configured key. An empty key
// stores values unencrypted; an unusable key is an error rather than a silent
// downgrade.
//
//nolint:ireturn // Returning interface is intentional for sealer abstraction
func CreateSealer(key string, logger *slog.Logger) (cryptoutil.Sealer, error) {
	if key == "" {
		if logger != nil {
			logger.Warn("credential encryption key is empty, storing tokens unencrypted")
		}
		return cryptoutil.PlainSealer{}, nil
	}

	sealer, err := cryptoutil.NewAESGCMSealerFromSecret(key)
	if err != nil {
		return nil, fmt.Errorf("create sealer: %w", err)
	}
	return sealer, nil
}

// BuildCredentialStore opens the configured credential backend.
func BuildCredentialStore(ctx context.Context, opts StorageOptions) (*CredentialStore, error) {
	sealer, err := CreateSealer(opts.Credentials.EncryptionKey, opts.Logger)
	if err != nil {
		return nil, err
	}

	switch opts.Credentials.Backend {
	case config.CredentialsBackendSQLite:
		store, err := sqlite.Open(opts.Credentials.Path, sqlite.Options{Sealer: sealer})
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		if opts.Logger != nil {
			opts.Logger.InfoContext(ctx, "credential store opened", "backend", "sqlite", "path", opts.Credentials.Path)
		}
		return &CredentialStore{CredentialStore: store, close: store.Close}, nil

	case config.CredentialsBackendRedis:
		client, err := ConnectRedis(ctx, RedisOptions{Config: opts.Redis, Logger: opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store, err := redisadapter.NewCredentialStore(client, redisadapter.CredentialStoreOptions{
			Prefix: opts.Credentials.Prefix,
			Sealer: sealer,
			TTL:    opts.Credentials.TTL,
		})
		if err != nil {
			if cerr := client.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close redis: %w", cerr))
			}
			return nil, err
		}
		return &CredentialStore{CredentialStore: store, close: client.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported credentials backend %q", opts.Credentials.Backend)
	}
}

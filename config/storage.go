package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CredentialsBackend selects where the credential token is persisted.
type CredentialsBackend string

const (
	// CredentialsBackendSQLite keeps the token in a local SQLite database file.
	CredentialsBackendSQLite CredentialsBackend = "sqlite"
	// CredentialsBackendRedis keeps the token in Redis.
	CredentialsBackendRedis CredentialsBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for CredentialsBackend.
func (b *CredentialsBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "sqlite", "redis":
		*b = CredentialsBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid CredentialsBackend: %q (valid options: sqlite, redis)", v)
	}
}

// CredentialsConfig controls the secure credential store.
type CredentialsConfig struct {
	Backend CredentialsBackend `env:"BACKEND" envDefault:"sqlite"`
	// Path is the SQLite database file (sqlite backend).
	Path string `env:"PATH" envDefault:".mmk-auth/credentials.db"`
	// EncryptionKey seals stored values with AES-GCM. Empty stores values unencrypted.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	// TTL expires the Redis entry; zero keeps it until sign-out.
	TTL time.Duration `env:"TTL" envDefault:"0s"`
	// Prefix namespaces Redis keys.
	Prefix string `env:"PREFIX" envDefault:"mmk-auth:"`
}

// Sanitize normalises credential store settings.
func (c *CredentialsConfig) Sanitize() {
	c.Path = strings.TrimSpace(c.Path)
	c.EncryptionKey = strings.TrimSpace(c.EncryptionKey)
	if c.TTL < 0 {
		c.TTL = 0
	}
}

// Validate checks the settings required by the selected backend.
func (c CredentialsConfig) Validate() error {
	switch c.Backend {
	case CredentialsBackendSQLite:
		if c.Path == "" {
			return errors.New("CREDENTIALS_PATH is required for the sqlite backend")
		}
		return nil
	case CredentialsBackendRedis:
		return nil
	default:
		return fmt.Errorf("unsupported credentials backend %q", c.Backend)
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// ConnectAttempts bounds the startup ping retries.
	ConnectAttempts uint64 `env:"CONNECT_ATTEMPTS" envDefault:"5"`
}

// Package redis provides Redis-backed adapters for mmk-auth.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-auth/internal/cryptoutil"
	"github.com/target/mmk-auth/internal/ports"
)

// DefaultPrefix namespaces every key written by CredentialStore.
const DefaultPrefix = "mmk-auth:"

var _ ports.CredentialStore = (*CredentialStore)(nil)

// CredentialStoreOptions configures NewCredentialStore.
type CredentialStoreOptions struct {
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// Sealer encrypts values at rest. Defaults to cryptoutil.PlainSealer.
	Sealer cryptoutil.Sealer
	// TTL bounds how long a credential survives; zero keeps it until deleted.
	TTL time.Duration
}

// CredentialStore keeps credentials in Redis, one key per credential.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
	sealer cryptoutil.Sealer
	ttl    time.Duration
}

// NewCredentialStore creates a Redis-backed credential store.
func NewCredentialStore(client redis.UniversalClient, opts CredentialStoreOptions) (*CredentialStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("ttl must not be negative, got %s", opts.TTL)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	sealer := opts.Sealer
	if sealer == nil {
		sealer = cryptoutil.PlainSealer{}
	}
	return &CredentialStore{client: client, prefix: prefix, sealer: sealer, ttl: opts.TTL}, nil
}

func (s *CredentialStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	sealed, err := s.sealer.Seal(key, value)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ports.ErrCredentialNotFound
	}
	sealed, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrCredentialNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	value, err := s.sealer.Open(key, sealed)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-auth/internal/cryptoutil"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestNewCredentialStore_Validation(t *testing.T) {
	_, err := NewCredentialStore(nil, CredentialStoreOptions{})
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	_, err = NewCredentialStore(client, CredentialStoreOptions{TTL: -time.Second})
	assert.Error(t, err)

	store, err := NewCredentialStore(client, CredentialStoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefix, store.prefix)
	assert.IsType(t, cryptoutil.PlainSealer{}, store.sealer)
}

func TestCredentialStore_SetGetDelete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, err := NewCredentialStore(client, CredentialStoreOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "firebase_id_token", "tok-1"))

	got, err := store.Get(ctx, "firebase_id_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	require.NoError(t, store.Set(ctx, "firebase_id_token", "tok-2"))
	got, err = store.Get(ctx, "firebase_id_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)

	require.NoError(t, store.Delete(ctx, "firebase_id_token"))
	_, err = store.Get(ctx, "firebase_id_token")
	assert.ErrorIs(t, err, ports.ErrCredentialNotFound)

	require.NoError(t, store.Delete(ctx, "firebase_id_token"), "deleting a missing key is a no-op")
}

func TestCredentialStore_EncryptsAtRest(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	sealer, err := cryptoutil.NewAESGCMSealerFromSecret("test-secret")
	require.NoError(t, err)
	store, err := NewCredentialStore(client, CredentialStoreOptions{Prefix: "test:", Sealer: sealer})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "plain-token"))

	raw, err := client.Get(ctx, "test:k").Result()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "v1:"))
	assert.NotContains(t, raw, "plain-token")

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", got)
}

func TestCredentialStore_TTL(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, err := NewCredentialStore(client, CredentialStoreOptions{TTL: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v"))
	ttl, err := client.TTL(ctx, DefaultPrefix+"k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestCredentialStore_EmptyKey(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, err := NewCredentialStore(client, CredentialStoreOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, store.Set(ctx, "", "v"))
	_, err = store.Get(ctx, "")
	assert.ErrorIs(t, err, ports.ErrCredentialNotFound)
	assert.NoError(t, store.Delete(ctx, ""))
}

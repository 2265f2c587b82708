package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-auth/internal/cryptoutil"
	"github.com/target/mmk-auth/internal/ports"
)

func openTempStore(t *testing.T, opts Options) (*CredentialStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "credentials.db")
	store, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("close store: %v", err)
		}
	})
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", Options{})
	assert.Error(t, err)
}

func TestCloseNilSafe(t *testing.T) {
	var store *CredentialStore
	assert.NoError(t, store.Close())
}

func TestOpen_FilePermissions(t *testing.T) {
	_, path := openTempStore(t, Options{})

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	fixed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store, _ := openTempStore(t, Options{Now: func() time.Time { return fixed }})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "firebase_id_token", "tok-1"))
	got, err := store.Get(ctx, "firebase_id_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	require.NoError(t, store.Set(ctx, "firebase_id_token", "tok-2"))
	got, err = store.Get(ctx, "firebase_id_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)

	at, err := store.UpdatedAt(ctx, "firebase_id_token")
	require.NoError(t, err)
	assert.Equal(t, fixed, at)

	require.NoError(t, store.Delete(ctx, "firebase_id_token"))
	_, err = store.Get(ctx, "firebase_id_token")
	assert.ErrorIs(t, err, ports.ErrCredentialNotFound)
	_, err = store.UpdatedAt(ctx, "firebase_id_token")
	assert.ErrorIs(t, err, ports.ErrCredentialNotFound)

	assert.NoError(t, store.Delete(ctx, "firebase_id_token"))
}

func TestCredentialStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	ctx := context.Background()

	store, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", "v"))
	require.NoError(t, store.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestCredentialStore_EncryptsAtRest(t *testing.T) {
	sealer, err := cryptoutil.NewAESGCMSealerFromSecret("test-secret")
	require.NoError(t, err)
	store, path := openTempStore(t, Options{Sealer: sealer})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "plain-token"))

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	var stored string
	require.NoError(t, raw.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = 'k'`).Scan(&stored))
	assert.True(t, strings.HasPrefix(stored, "v1:"))
	assert.NotContains(t, stored, "plain-token")

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", got)
}

func TestCredentialStore_EmptyKey(t *testing.T) {
	store, _ := openTempStore(t, Options{})
	ctx := context.Background()

	assert.Error(t, store.Set(ctx, "", "v"))
	_, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, ports.ErrCredentialNotFound)
	assert.NoError(t, store.Delete(ctx, " "))
}

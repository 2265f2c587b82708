package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/target/mmk-auth/internal/cryptoutil"
	"github.com/target/mmk-auth/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

var _ ports.CredentialStore = (*CredentialStore)(nil)

// Options configures Open.
type Options struct {
	// Sealer encrypts values at rest. Defaults to cryptoutil.PlainSealer.
	Sealer cryptoutil.Sealer
	// Now defaults to time.Now.
	Now func() time.Time
}

// CredentialStore keeps credentials in a single SQLite file readable only by
// the owning user.
type CredentialStore struct {
	db     *sql.DB
	sealer cryptoutil.Sealer
	now    func() time.Time
}

// Open creates the database file with 0600 permissions if needed and applies
// the schema.
func Open(path string, opts Options) (*CredentialStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := ensureFile(cleanPath); err != nil {
		return nil, err
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	store := &CredentialStore{db: db, sealer: opts.Sealer, now: opts.Now}
	if store.sealer == nil {
		store.sealer = cryptoutil.PlainSealer{}
	}
	if store.now == nil {
		store.now = time.Now
	}
	return store, nil
}

func ensureFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("create storage file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close storage file: %w", err)
	}
	// An existing file may predate the permission requirement.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict storage file: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *CredentialStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *CredentialStore) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("credential key cannot be empty")
	}
	sealed, err := s.sealer.Seal(key, value)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO credentials (key, value, updated_at) VALUES (?1, ?2, ?3)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;
`, key, sealed, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ports.ErrCredentialNotFound
	}
	var sealed string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?1`, key).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ports.ErrCredentialNotFound
		}
		return "", fmt.Errorf("get credential: %w", err)
	}
	value, err := s.sealer.Open(key, sealed)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?1`, key); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// UpdatedAt reports when key was last written.
func (s *CredentialStore) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var millis int64
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM credentials WHERE key = ?1`, key).Scan(&millis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ports.ErrCredentialNotFound
		}
		return time.Time{}, fmt.Errorf("get credential timestamp: %w", err)
	}
	return time.UnixMilli(millis).UTC(), nil
}

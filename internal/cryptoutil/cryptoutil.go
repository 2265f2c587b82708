// Package cryptoutil seals credential values before they reach a persistent store.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Sealer encrypts values bound to the name they are stored under.
type Sealer interface {
	Seal(name, plaintext string) (string, error)
	Open(name, sealed string) (string, error)
}

const (
	// Versioned prefix to allow future key/algorithm rotations without data migrations.
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"

	// KeySize is the AES-256 key length.
	KeySize = 32

	hkdfInfo = "mmk-auth credential store"
)

// ErrUnknownFormat is returned when a value was not produced by a known Sealer.
var ErrUnknownFormat = errors.New("unknown sealed value format")

// AESGCMSealer implements Sealer using AES-256-GCM. The storage name is used
// as additional data, so a value copied under another name fails to open.
type AESGCMSealer struct {
	aead cipher.AEAD
}

var _ Sealer = (*AESGCMSealer)(nil)

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMSealer{aead: aead}, nil
}

// NewAESGCMSealerFromSecret derives the key with DeriveKey.
func NewAESGCMSealerFromSecret(secret string) (*AESGCMSealer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return NewAESGCMSealer(key)
}

// Seal encrypts plaintext with a random nonce and returns a versioned base64 string.
func (s *AESGCMSealer) Seal(name, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	// nonce||ciphertext
	buf := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(name))
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(buf), nil
}

// Open decrypts a value produced by Seal under the same name.
func (s *AESGCMSealer) Open(name, sealed string) (string, error) {
	b64, ok := strings.CutPrefix(sealed, sealedPrefixV1)
	if !ok {
		return "", fmt.Errorf("%w (prefix: %s)", ErrUnknownFormat, prefixOf(sealed))
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("sealed value too short")
	}
	pt, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(name))
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(pt), nil
}

// PlainSealer stores values base64-encoded with a marker. Tests and
// deployments without an encryption key use it.
type PlainSealer struct{}

var _ Sealer = PlainSealer{}

func (PlainSealer) Seal(_ string, plaintext string) (string, error) {
	return plainPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (PlainSealer) Open(_ string, sealed string) (string, error) {
	b64, ok := strings.CutPrefix(sealed, plainPrefix)
	if !ok {
		return "", fmt.Errorf("%w (prefix: %s)", ErrUnknownFormat, prefixOf(sealed))
	}
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode plain value: %w", err)
	}
	return string(b), nil
}

// DeriveKey turns a configured secret into an AES-256 key. A standard base64
// encoding of exactly 32 bytes is used as-is; any other secret is stretched
// with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == KeySize {
		return raw, nil
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func prefixOf(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

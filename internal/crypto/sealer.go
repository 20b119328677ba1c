// Package crypto seals broker tokens for storage at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// sealedPrefix marks a sealed value and its format version.
	sealedPrefix = "v1:"
)

// ErrNotSealed is returned by Open when a value lacks the sealed prefix while
// sealing is enabled.
var ErrNotSealed = errors.New("crypto: value is not sealed")

// Sealer encrypts short secrets with AES-256-GCM under a key derived once
// from a passphrase. A Sealer built from an empty passphrase is disabled and
// passes values through unchanged.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives the sealing key from passphrase and salt.
func NewSealer(passphrase, salt string) (*Sealer, error) {
	if passphrase == "" {
		return &Sealer{}, nil
	}
	if salt == "" {
		return nil, errors.New("crypto: salt must not be empty")
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.gcm != nil
}

// Seal encrypts plaintext and returns "v1:" + base64(nonce|ciphertext).
// Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(value string) (string, error) {
	if !s.Enabled() || value == "" {
		return value, nil
	}
	if !strings.HasPrefix(value, sealedPrefix) {
		return "", ErrNotSealed
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("crypto: decoding sealed value: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(raw) < ns {
		return "", errors.New("crypto: sealed value too short")
	}

	plaintext, err := s.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong passphrase?): %w", err)
	}
	return string(plaintext), nil
}

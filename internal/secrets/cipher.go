// Package secrets provides authenticated encryption for stored API keys.
// Blobs are base64(nonce || ciphertext+tag) under AES-256-GCM with a key
// derived from an operator-supplied passphrase.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PassphraseEnvVar names the environment variable the config layer
	// reads the passphrase from.
	PassphraseEnvVar = "SECRETS_PASSPHRASE"

	// keySalt is the fixed application-wide PBKDF2 salt. Uniqueness of
	// ciphertexts comes from the per-encryption nonce, not the salt.
	keySalt = "llm-access-gate.secrets.v1"

	pbkdf2Iterations = 100_000
	keyLen           = 32
	nonceSize        = 12

	// insecureDefaultPassphrase is used only outside production when no
	// passphrase is configured. Anything encrypted with it is readable
	// by anyone with the source.
	insecureDefaultPassphrase = "insecure-dev-passphrase"
)

// ErrDecryptionFailed indicates tampered or malformed ciphertext, or a
// wrong key. Callers must treat it as distinct from "no secret stored".
var ErrDecryptionFailed = errors.New("decryption failed")

// ErrPassphraseRequired indicates no passphrase was configured in a
// production runtime.
var ErrPassphraseRequired = fmt.Errorf("%s must be set in production", PassphraseEnvVar)

// Cipher encrypts and decrypts secret strings. Safe for concurrent use;
// the derived key is fixed at construction.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AES-256 key from the passphrase and returns a
// ready cipher. An empty passphrase is fatal in production; outside
// production it falls back to a well-known insecure default and says so
// loudly, so local development works without key material.
func NewCipher(passphrase string, production bool, logger *zap.Logger) (*Cipher, error) {
	if passphrase == "" {
		if production {
			return nil, ErrPassphraseRequired
		}
		logger.Warn("no secrets passphrase configured, using insecure development default",
			zap.String("env_var", PassphraseEnvVar))
		passphrase = insecureDefaultPassphrase
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(keySalt), pbkdf2Iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts a plaintext secret and returns
// base64(nonce || ciphertext+tag) with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	blob := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. Any failure (bad base64, truncated blob,
// authentication-tag mismatch, wrong key) surfaces as ErrDecryptionFailed
// and never as garbage plaintext.
func (c *Cipher) Decrypt(ciphertextB64 string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	if len(blob) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := c.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c, err := NewCipher("test-passphrase", false, logger)
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{
		"sk-abc123",
		"",
		"a key with spaces and unicode: ñ世界",
	} {
		blob, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, blob)

		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestCipher_NonceFreshness(t *testing.T) {
	c := newTestCipher(t)

	blob1, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	blob2, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, blob1, blob2)
}

func TestCipher_TamperDetection(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.Encrypt("sk-abc123")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	// Flip one bit in every byte position in turn; all must fail
	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrDecryptionFailed, "flipped byte %d went undetected", i)
	}
}

func TestCipher_MalformedInput(t *testing.T) {
	c := newTestCipher(t)

	tests := []struct {
		name string
		blob string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"empty", ""},
		{"too short for nonce", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"nonce only, no ciphertext", base64.StdEncoding.EncodeToString(make([]byte, 12))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decrypt(tt.blob)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
			assert.Empty(t, got)
		})
	}
}

func TestCipher_WrongPassphrase(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	c1, err := NewCipher("passphrase-one", false, logger)
	require.NoError(t, err)
	c2, err := NewCipher("passphrase-two", false, logger)
	require.NoError(t, err)

	blob, err := c1.Encrypt("sk-abc123")
	require.NoError(t, err)

	_, err = c2.Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewCipher_ProductionRequiresPassphrase(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	_, err := NewCipher("", true, logger)
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}

func TestNewCipher_DevelopmentFallback(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	c1, err := NewCipher("", false, logger)
	require.NoError(t, err)
	c2, err := NewCipher("", false, logger)
	require.NoError(t, err)

	// Both instances derive the same key, so blobs interoperate
	blob, err := c1.Encrypt("sk-abc123")
	require.NoError(t, err)
	got, err := c2.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc123", got)
}

func TestCipher_DerivedKeyIsStable(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	c1, err := NewCipher("stable-passphrase", false, logger)
	require.NoError(t, err)
	blob, err := c1.Encrypt("sk-abc123")
	require.NoError(t, err)

	// A separately constructed cipher with the same passphrase reads it
	c2, err := NewCipher("stable-passphrase", false, logger)
	require.NoError(t, err)
	got, err := c2.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc123", got)
}

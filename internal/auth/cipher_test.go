package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *SnapshotCipher {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	c, err := NewSnapshotCipher(hex.EncodeToString(key), true)
	require.NoError(t, err)
	return c
}

func TestSnapshotCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	payload := map[string]any{
		"method":  "totp",
		"user_id": "f3b9c1ce-0001-4a1c-9f6e-2e2a6a1b9d00",
		"codes":   []any{"a", "b", "c"},
		"count":   float64(3),
	}

	sealed, err := c.Encrypt(payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:"))

	out, ok := c.Decrypt(sealed)
	require.True(t, ok)
	assert.Equal(t, payload, out)
}

func TestSnapshotCipher_DecryptInto_Typed(t *testing.T) {
	c := newTestCipher(t)

	type snapshot struct {
		Method string   `json:"method"`
		Codes  []string `json:"codes"`
	}

	sealed, err := c.Encrypt(snapshot{Method: "totp", Codes: []string{"x", "y"}})
	require.NoError(t, err)

	var out snapshot
	require.True(t, c.DecryptInto(sealed, &out))
	assert.Equal(t, "totp", out.Method)
	assert.Equal(t, []string{"x", "y"}, out.Codes)
}

func TestSnapshotCipher_LegacyPlaintextJSON(t *testing.T) {
	c := newTestCipher(t)

	out, ok := c.Decrypt(`{"method":"totp","verified":true}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"method": "totp", "verified": true}, out)
}

func TestSnapshotCipher_CorruptEnvelopeReturnsFalse(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)

	// Flip a ciphertext bit
	raw, err := base64.StdEncoding.DecodeString(sealed[len("enc:"):])
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := "enc:" + base64.StdEncoding.EncodeToString(raw)

	_, ok := c.Decrypt(tampered)
	assert.False(t, ok)

	// Assorted garbage never panics, just fails
	for _, v := range []string{"enc:", "enc:!!!", "enc:AAAA", "not json at all"} {
		_, ok := c.Decrypt(v)
		assert.False(t, ok, "value %q", v)
	}
}

func TestSnapshotCipher_EnvelopeLayout(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Encrypt("x")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed[len("enc:"):])
	require.NoError(t, err)
	// iv[12] + tag[16] + ciphertext(len(`"x"`))
	assert.Equal(t, 12+16+3, len(raw))
}

func TestNewSnapshotCipher_KeyResolution(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	t.Run("hex key", func(t *testing.T) {
		_, err := NewSnapshotCipher(hex.EncodeToString(key), true)
		assert.NoError(t, err)
	})

	t.Run("base64 key", func(t *testing.T) {
		_, err := NewSnapshotCipher(base64.StdEncoding.EncodeToString(key), true)
		assert.NoError(t, err)
	})

	t.Run("passphrase is stretched", func(t *testing.T) {
		_, err := NewSnapshotCipher("a humble passphrase", true)
		assert.NoError(t, err)
	})

	t.Run("empty key fatal in production", func(t *testing.T) {
		_, err := NewSnapshotCipher("", true)
		assert.Error(t, err)
	})

	t.Run("empty key tolerated in development", func(t *testing.T) {
		_, err := NewSnapshotCipher("", false)
		assert.NoError(t, err)
	})
}

func TestSnapshotCipher_DifferentKeysCannotDecrypt(t *testing.T) {
	a := newTestCipher(t)
	b := newTestCipher(t)

	sealed, err := a.Encrypt("secret payload")
	require.NoError(t, err)

	_, ok := b.Decrypt(sealed)
	assert.False(t, ok)
}

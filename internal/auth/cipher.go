package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	encPrefix    = "enc:"
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// devFallbackSecret keys non-production deployments that never set a
// snapshot key. Production construction fails instead of weakening.
const devFallbackSecret = "punchdeck-dev-snapshot-key"

// SnapshotCipher provides authenticated encryption for structured
// audit snapshots. The envelope is "enc:" + base64(iv ∥ tag ∥ ct)
// with AES-256-GCM (96-bit nonce, 128-bit tag) over the JSON payload.
type SnapshotCipher struct {
	aead cipher.AEAD
}

// NewSnapshotCipher resolves key material from the configured secret:
// hex decoding to >=32 bytes, base64 decoding to >=32 bytes, or an
// HKDF-SHA256 stretch of anything else. In production an explicit
// secret is mandatory; an empty one is a fatal misconfiguration.
func NewSnapshotCipher(secret string, production bool) (*SnapshotCipher, error) {
	if secret == "" {
		if production {
			return nil, fmt.Errorf("snapshot encryption key is required in production")
		}
		secret = devFallbackSecret
	}

	key, err := resolveSnapshotKey(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SnapshotCipher{aead: aead}, nil
}

func resolveSnapshotKey(secret string) ([]byte, error) {
	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) >= 32 {
		return decoded[:32], nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) >= 32 {
		return decoded[:32], nil
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("punchdeck-snapshot"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive snapshot key: %w", err)
	}
	return key, nil
}

// Encrypt serializes payload as JSON and seals it into the envelope
func (c *SnapshotCipher) Encrypt(payload any) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	envelope := make([]byte, 0, gcmNonceSize+gcmTagSize+len(ciphertext))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ciphertext...)

	return encPrefix + base64.StdEncoding.EncodeToString(envelope), nil
}

// DecryptInto opens value into out. A value without the "enc:" prefix
// is treated as legacy plaintext JSON. Every failure mode returns
// false rather than an error: a single unreadable snapshot must fail
// only its own rollback, not the surrounding operation.
func (c *SnapshotCipher) DecryptInto(value string, out any) bool {
	if !strings.HasPrefix(value, encPrefix) {
		return json.Unmarshal([]byte(value), out) == nil
	}

	envelope, err := base64.StdEncoding.DecodeString(value[len(encPrefix):])
	if err != nil {
		return false
	}
	if len(envelope) < gcmNonceSize+gcmTagSize {
		return false
	}

	nonce := envelope[:gcmNonceSize]
	tag := envelope[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ciphertext := envelope[gcmNonceSize+gcmTagSize:]

	sealed := make([]byte, 0, len(ciphertext)+gcmTagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return false
	}
	return json.Unmarshal(plaintext, out) == nil
}

// Decrypt opens value into a generic JSON shape
func (c *SnapshotCipher) Decrypt(value string) (any, bool) {
	var out any
	if !c.DecryptInto(value, &out) {
		return nil, false
	}
	return out, true
}

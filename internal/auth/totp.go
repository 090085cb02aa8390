package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/punchdeck/punchdeck/internal/ratelimit"
)

// TOTPEngine handles secret generation, provisioning URIs and
// time-windowed code verification. Replay protection rides on the rate
// limiter: the first verification of a given (secret, time-step)
// consumes a one-shot key, so a second attempt with the same code is
// rejected even inside the acceptance window.
type TOTPEngine struct {
	limiter ratelimit.Limiter
	issuer  string
}

// NewTOTPEngine creates a TOTP engine. issuer appears in provisioning
// URIs shown to authenticator apps.
func NewTOTPEngine(limiter ratelimit.Limiter, issuer string) *TOTPEngine {
	return &TOTPEngine{limiter: limiter, issuer: issuer}
}

// GenerateSecret creates a new 20-byte base32-encoded shared secret
func (e *TOTPEngine) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: "enrollment",
		SecretSize:  20,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), nil
}

// ProvisioningURI emits the standard authenticator-app format:
// otpauth://totp/<label>?secret=...&issuer=...&algorithm=SHA1&digits=N&period=N
func (e *TOTPEngine) ProvisioningURI(secret, label string, digits, period int) string {
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", e.issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", strconv.Itoa(digits))
	query.Set("period", strconv.Itoa(period))

	return "otpauth://totp/" + url.PathEscape(label) + "?" + query.Encode()
}

// QRCodeDataURL renders a provisioning URI as a PNG data URL for the
// enrollment screen.
func (e *TOTPEngine) QRCodeDataURL(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Verify checks token against secret over the inclusive window of
// 2*window+1 time-steps around now. A token that is not exactly digits
// numeric characters is rejected up front. The first matching counter
// consumes its replay-guard key; if the key was already consumed the
// attempt is treated as invalid despite the digit match.
func (e *TOTPEngine) Verify(ctx context.Context, secret, token string, digits, period, window int) bool {
	if !isNumeric(token, digits) {
		return false
	}
	if period <= 0 {
		period = 30
	}
	if window < 0 {
		window = 0
	}

	counter := time.Now().Unix() / int64(period)
	opts := hotp.ValidateOpts{
		Digits:    otp.Digits(digits),
		Algorithm: otp.AlgorithmSHA1,
	}

	for offset := -window; offset <= window; offset++ {
		candidate := counter + int64(offset)
		if candidate < 0 {
			continue
		}

		code, err := hotp.GenerateCodeCustom(secret, uint64(candidate), opts)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(token)) != 1 {
			continue
		}

		// One-shot consumption keyed by (secret, time-step). The key
		// outlives the widest acceptance of this counter.
		ttl := time.Duration(period*(window+1)) * time.Second
		return e.limiter.Allow(ctx, replayKey(secret, candidate), 1, ttl)
	}

	return false
}

func replayKey(secret string, counter int64) string {
	sum := sha256.Sum256([]byte(secret))
	return "totp:replay:" + hex.EncodeToString(sum[:16]) + ":" + strconv.FormatInt(counter, 10)
}

func isNumeric(token string, digits int) bool {
	if len(token) != digits {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Charset excludes visually ambiguous characters (0/O, 1/I/L)
const recoveryAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const recoveryGroupLen = 5

// GenerateRecoveryCodes returns count single-use backup codes in the
// form XXXXX-XXXXX. The plaintext leaves this call exactly once;
// storage only ever sees the hash.
func GenerateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, recoveryGroupLen*2)
		for j := range raw {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(recoveryAlphabet))))
			if err != nil {
				return nil, fmt.Errorf("failed to generate recovery code: %w", err)
			}
			raw[j] = recoveryAlphabet[n.Int64()]
		}
		codes[i] = string(raw[:recoveryGroupLen]) + "-" + string(raw[recoveryGroupLen:])
	}
	return codes, nil
}

// NormalizeRecoveryCode uppercases the input and strips everything
// outside [0-9A-Z], so hyphenation and spacing at entry time do not
// affect matching.
func NormalizeRecoveryCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashRecoveryCode returns the hex sha256 of the normalized code
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeRecoveryCode(code)))
	return hex.EncodeToString(sum[:])
}
